package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/meetscribe/captionflow/internal/adapters/repository"
	"github.com/meetscribe/captionflow/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func msgID(v uint32) *uint32 { return &v }

func seg(meetingID string, id *uint32, device, speaker, text string, version uint32) model.Segment {
	return model.Segment{
		MeetingID: meetingID,
		SessionID: meetingID,
		DeviceID:  device,
		Speaker:   speaker,
		Text:      text,
		MessageID: id,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

func TestShardedStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := repository.NewShardedStore(ctx)
		Reset(func() { _ = s.Close() })

		Convey("When reading an unknown meeting", func() {
			_, err := s.Segments(ctx, "meet-1", 0)

			Convey("Then it reports not found", func() {
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})

		Convey("When the limit is negative", func() {
			_, err := s.Segments(ctx, "meet-1", -1)

			Convey("Then it rejects the limit", func() {
				So(err, ShouldEqual, repository.ErrInvalidLimit)
			})
		})

		Convey("When appending segments for one meeting", func() {
			So(s.Append(ctx, seg("meet-1", msgID(1), "dev-1", "Alice", "hello", 1)), ShouldBeNil)
			So(s.Append(ctx, seg("meet-1", msgID(2), "dev-2", "Bob", "hi there", 1)), ShouldBeNil)

			Convey("Then the transcript is in arrival order", func() {
				segs, err := s.Segments(ctx, "meet-1", 0)
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
				So(segs[0].Text, ShouldEqual, "hello")
				So(segs[1].Text, ShouldEqual, "hi there")
				So(s.Count(ctx), ShouldEqual, 2)
			})

			Convey("Then a newer version replaces the segment in place", func() {
				So(s.Append(ctx, seg("meet-1", msgID(1), "dev-1", "Alice", "hello world", 2)), ShouldBeNil)

				segs, err := s.Segments(ctx, "meet-1", 0)
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
				So(segs[0].Text, ShouldEqual, "hello world")
				So(segs[0].Version, ShouldEqual, 2)
				So(segs[1].Text, ShouldEqual, "hi there")
			})

			Convey("Then the same message id on another device is its own row", func() {
				So(s.Append(ctx, seg("meet-1", msgID(1), "dev-2", "Bob", "echo", 1)), ShouldBeNil)

				segs, err := s.Segments(ctx, "meet-1", 0)
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 3)
			})

			Convey("Then a positive limit returns the tail of the transcript", func() {
				So(s.Append(ctx, seg("meet-1", msgID(3), "dev-1", "Alice", "third", 1)), ShouldBeNil)

				segs, err := s.Segments(ctx, "meet-1", 2)
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
				So(segs[0].Text, ShouldEqual, "hi there")
				So(segs[1].Text, ShouldEqual, "third")
			})
		})

		Convey("When segments carry no message id", func() {
			So(s.Append(ctx, seg("meet-1", nil, "dev-1", "Alice", "one", 1)), ShouldBeNil)
			So(s.Append(ctx, seg("meet-1", nil, "dev-1", "Alice", "two", 1)), ShouldBeNil)

			Convey("Then they never replace each other", func() {
				segs, err := s.Segments(ctx, "meet-1", 0)
				So(err, ShouldBeNil)
				So(len(segs), ShouldEqual, 2)
			})
		})

		Convey("When listing speakers", func() {
			So(s.Append(ctx, seg("meet-1", msgID(1), "dev-1", "Alice", "a", 1)), ShouldBeNil)
			So(s.Append(ctx, seg("meet-1", msgID(2), "dev-2", "Bob", "b", 1)), ShouldBeNil)
			So(s.Append(ctx, seg("meet-1", msgID(3), "dev-1", "Alice", "c", 1)), ShouldBeNil)

			Convey("Then each speaker appears once, in first-appearance order", func() {
				speakers, err := s.Speakers(ctx, "meet-1")
				So(err, ShouldBeNil)
				So(speakers, ShouldResemble, []string{"Alice", "Bob"})
			})

			Convey("Then an unknown meeting reports not found", func() {
				_, err := s.Speakers(ctx, "meet-9")
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})

		Convey("When meetings are spread across shards", func() {
			for i := 0; i < 50; i++ {
				meeting := fmt.Sprintf("meet-%d", i)
				So(s.Append(ctx, seg(meeting, msgID(1), "dev-1", "Alice", "x", 1)), ShouldBeNil)
			}

			Convey("Then the global count sums all of them", func() {
				So(s.Count(ctx), ShouldEqual, 50)
			})

			Convey("Then clearing one meeting leaves the rest", func() {
				s.Clear(ctx, "meet-7")
				So(s.Count(ctx), ShouldEqual, 49)
				_, err := s.Segments(ctx, "meet-7", 0)
				So(err, ShouldEqual, repository.ErrNotFound)
			})
		})
	})

	Convey("Given a store with a single shard", t, func() {
		s := repository.NewShardedStore(ctx, repository.WithShardCount(1))
		Reset(func() { _ = s.Close() })

		Convey("When appending concurrently from many goroutines", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				go func(n int) {
					defer wg.Done()
					id := uint32(n)
					_ = s.Append(ctx, seg("meet-1", &id, "dev-1", "Alice", "text", 1))
				}(i)
			}
			wg.Wait()

			Convey("Then every distinct message id is stored once", func() {
				So(s.Count(ctx), ShouldEqual, 100)
			})
		})
	})
}
