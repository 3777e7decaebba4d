package wire_test

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/meetscribe/captionflow/internal/domain/wire"
	. "github.com/smartystreets/goconvey/convey"
)

// deviceID31 is exactly 31 bytes, the length the nested header carries.
const deviceID31 = "spaces/AbCdEfGh/devices/1234567"

// buildRecord assembles a well-formed caption record: nested device-id
// block, start marker, timestamp + text block, message-id pattern with
// little-endian id and version, and a lang-id pattern.
func buildRecord(deviceID, text string, messageID, version uint32, langID uint8) []byte {
	var buf bytes.Buffer
	// Nested device header: tag 10, message length, tag 10, length 31, id.
	buf.WriteByte(10)
	buf.WriteByte(byte(len(deviceID) + 2))
	buf.WriteByte(10)
	buf.WriteByte(byte(len(deviceID)))
	buf.WriteString(deviceID)
	// Start marker.
	buf.Write([]byte{16, 1})
	// Timestamp + text.
	buf.Write([]byte{24, 5, 50, byte(len(text))})
	buf.WriteString(text)
	// Message id separator, id, version.
	buf.Write([]byte{24, 0, 32, 1, 45, 0})
	_ = binary.Write(&buf, binary.LittleEndian, messageID)
	_ = binary.Write(&buf, binary.LittleEndian, version)
	// Lang id.
	buf.Write([]byte{64, 0, 72, langID})
	return buf.Bytes()
}

func gzipBase64(raw []byte) string {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(raw)
	_ = zw.Close()
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode(t *testing.T) {
	Convey("Given a well-formed capture blob", t, func() {
		record := buildRecord(deviceID31, "test", 42, 3, 7)

		Convey("When decoding the gzipped base64 blob", func() {
			ev, err := wire.Decode(gzipBase64(record))

			Convey("Then every injected field is recovered", func() {
				So(err, ShouldBeNil)
				So(ev.DeviceID, ShouldEqual, deviceID31)
				So(ev.Text, ShouldEqual, "test")
				So(ev.MessageID, ShouldNotBeNil)
				So(*ev.MessageID, ShouldEqual, 42)
				So(ev.Version, ShouldEqual, 3)
				So(ev.LangID, ShouldNotBeNil)
				So(*ev.LangID, ShouldEqual, 7)
			})
		})

		Convey("When the gzip magic is skewed by three stray bytes", func() {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(record)
			_ = zw.Close()
			skewed := append([]byte{0xAA, 0xBB, 0xCC}, buf.Bytes()...)
			ev, err := wire.Decode(base64.StdEncoding.EncodeToString(skewed))

			Convey("Then decompression starts at offset 3", func() {
				So(err, ShouldBeNil)
				So(ev.Text, ShouldEqual, "test")
				So(ev.DeviceID, ShouldEqual, deviceID31)
			})
		})

		Convey("When the payload is not compressed at all", func() {
			ev, err := wire.Decode(base64.StdEncoding.EncodeToString(record))

			Convey("Then it is decoded as-is", func() {
				So(err, ShouldBeNil)
				So(ev.Text, ShouldEqual, "test")
			})
		})

		Convey("When the version field is zero", func() {
			ev, err := wire.Decode(gzipBase64(buildRecord(deviceID31, "hello", 9, 0, 1)))

			Convey("Then it defaults to 1", func() {
				So(err, ShouldBeNil)
				So(ev.Version, ShouldEqual, 1)
			})
		})
	})

	Convey("Given malformed transport envelopes", t, func() {
		Convey("When the blob is not base64", func() {
			_, err := wire.Decode("!!! not base64 !!!")

			Convey("Then it fails in the base64 stage", func() {
				So(errors.Is(err, wire.ErrBase64), ShouldBeTrue)
			})
		})

		Convey("When the blob decodes to nothing", func() {
			_, err := wire.Decode("")

			Convey("Then it fails with an empty payload", func() {
				So(errors.Is(err, wire.ErrEmptyPayload), ShouldBeTrue)
			})
		})

		Convey("When a confirmed gzip header does not inflate", func() {
			corrupt := []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad, 0xbe, 0xef, 0x00, 0x00, 0x01}
			_, err := wire.Decode(base64.StdEncoding.EncodeToString(corrupt))

			Convey("Then it fails in the decompress stage", func() {
				So(errors.Is(err, wire.ErrDecompress), ShouldBeTrue)
			})
		})
	})

	Convey("Given a truncated record", t, func() {
		record := buildRecord(deviceID31, "test", 42, 3, 7)
		// The start marker sits right after the 35-byte device header.
		markerOffset := bytes.IndexByte(record, 16)

		Convey("When truncated at any offset before the start marker", func() {
			for cut := 0; cut <= markerOffset; cut++ {
				_, err := wire.Decode(gzipBase64(record[:cut]))
				So(err, ShouldNotBeNil)
				So(errors.Is(err, wire.ErrStructureNotFound) || errors.Is(err, wire.ErrEmptyPayload), ShouldBeTrue)
			}

			Convey("Then no spurious event is ever produced", nil)
		})
	})

	Convey("Given a record with no device id and no timestamp chain", t, func() {
		var buf bytes.Buffer
		buf.Write([]byte{16, 1})
		buf.Write([]byte{50, 5}) // bare text tag, no tag-24 anchor
		buf.WriteString("hello")
		buf.Write([]byte{0, 0})

		Convey("When decoding", func() {
			ev, err := wire.Decode(gzipBase64(buf.Bytes()))

			Convey("Then text survives with an empty device id", func() {
				So(err, ShouldBeNil)
				So(ev.DeviceID, ShouldEqual, "")
				So(ev.Text, ShouldEqual, "hello")
				So(ev.MessageID, ShouldBeNil)
				So(ev.Version, ShouldEqual, 1)
				So(ev.LangID, ShouldBeNil)
			})
		})
	})
}

func TestMessageIDPatterns(t *testing.T) {
	Convey("Given records using each known message-id separator", t, func() {
		patterns := [][]byte{
			{24, 0, 32, 1, 45, 0},
			{24, 0, 1, 32, 1, 45, 0},
			{24, 0, 45, 0},
			{24, 0, 1, 45, 0},
		}

		for _, pattern := range patterns {
			var buf bytes.Buffer
			buf.Write([]byte{16, 1})
			buf.Write([]byte{24, 5, 50, 2})
			buf.WriteString("hi")
			buf.Write(pattern)
			_ = binary.Write(&buf, binary.LittleEndian, uint32(1234))
			_ = binary.Write(&buf, binary.LittleEndian, uint32(2))

			ev, err := wire.Decode(gzipBase64(buf.Bytes()))
			So(err, ShouldBeNil)
			So(ev.MessageID, ShouldNotBeNil)
			So(*ev.MessageID, ShouldEqual, 1234)
			So(ev.Version, ShouldEqual, 2)
		}
	})

	Convey("Given a record where only the id fits after the separator", t, func() {
		var buf bytes.Buffer
		buf.Write([]byte{16, 1})
		buf.Write([]byte{24, 5, 50, 2})
		buf.WriteString("hi")
		buf.Write([]byte{24, 0, 45, 0})
		_ = binary.Write(&buf, binary.LittleEndian, uint32(77))

		Convey("When decoding", func() {
			ev, err := wire.Decode(gzipBase64(buf.Bytes()))

			Convey("Then the version defaults to 1", func() {
				So(err, ShouldBeNil)
				So(ev.MessageID, ShouldNotBeNil)
				So(*ev.MessageID, ShouldEqual, 77)
				So(ev.Version, ShouldEqual, 1)
			})
		})
	})
}

func TestDeviceIDFallbacks(t *testing.T) {
	Convey("Given a record with the device id as a bare string before the marker", t, func() {
		var buf bytes.Buffer
		buf.WriteString("spaces/j5ZV3BSRHZEB/devices/227")
		buf.Write([]byte{16, 1})
		buf.Write([]byte{24, 5, 50, 3})
		buf.WriteString("yes")
		buf.Write([]byte{0, 0, 0})

		Convey("When decoding", func() {
			ev, err := wire.Decode(gzipBase64(buf.Bytes()))

			Convey("Then the pre-marker string search recovers it", func() {
				So(err, ShouldBeNil)
				So(ev.DeviceID, ShouldEqual, "spaces/j5ZV3BSRHZEB/devices/227")
				So(ev.Text, ShouldEqual, "yes")
			})
		})
	})

	Convey("Given a record with a tag-98 device field after the marker", t, func() {
		id := "devices/4242"
		var buf bytes.Buffer
		buf.Write([]byte{16, 1})
		buf.WriteByte(98)
		buf.WriteByte(byte(len(id)))
		buf.WriteString(id)
		buf.Write([]byte{24, 5, 50, 3})
		buf.WriteString("abc")
		buf.Write([]byte{0, 0, 0})

		Convey("When decoding", func() {
			ev, err := wire.Decode(gzipBase64(buf.Bytes()))

			Convey("Then the tag-98 scan recovers it", func() {
				So(err, ShouldBeNil)
				So(ev.DeviceID, ShouldEqual, id)
				So(ev.Text, ShouldEqual, "abc")
			})
		})
	})

	Convey("Given a tag-98 field whose length byte is a misread varint", t, func() {
		id := "devices/51"
		var buf bytes.Buffer
		buf.Write([]byte{16, 1})
		buf.Write([]byte{98, 250}) // length 250 exceeds the cap, skipped
		buf.WriteByte(98)
		buf.WriteByte(byte(len(id)))
		buf.WriteString(id)
		buf.Write([]byte{24, 5, 50, 2})
		buf.WriteString("ok")
		buf.Write([]byte{0, 0, 0})

		Convey("When decoding", func() {
			ev, err := wire.Decode(gzipBase64(buf.Bytes()))

			Convey("Then the scan skips it and finds the real field", func() {
				So(err, ShouldBeNil)
				So(ev.DeviceID, ShouldEqual, id)
			})
		})
	})
}
