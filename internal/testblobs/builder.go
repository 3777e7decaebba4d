package testblobs

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/binary"
)

// BuildBlob assembles one capture payload the way real capture clients
// ship them: a nested device-id block, a start marker, the caption text
// block, a message-id pattern with the little-endian id and version,
// all gzipped and base64 encoded.
func BuildBlob(deviceID, text string, messageID, version uint32) string {
	var buf bytes.Buffer
	buf.WriteByte(10)
	buf.WriteByte(byte(len(deviceID) + 2))
	buf.WriteByte(10)
	buf.WriteByte(byte(len(deviceID)))
	buf.WriteString(deviceID)
	buf.Write([]byte{16, 1})
	buf.Write([]byte{24, 5, 50, byte(len(text))})
	buf.WriteString(text)
	buf.Write([]byte{24, 0, 32, 1, 45, 0})
	_ = binary.Write(&buf, binary.LittleEndian, messageID)
	_ = binary.Write(&buf, binary.LittleEndian, version)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write(buf.Bytes())
	_ = zw.Close()
	return base64.StdEncoding.EncodeToString(gz.Bytes())
}
