package wire

import "errors"

// Sentinel kinds for decode failures. Each one identifies the stage that
// rejected the blob; callers match with errors.Is.
var (
	// ErrBase64 reports a malformed base64 transport envelope.
	ErrBase64 = errors.New("base64 decode failed")

	// ErrEmptyPayload reports a zero-length payload after base64 decoding.
	ErrEmptyPayload = errors.New("empty payload")

	// ErrDecompress reports a confirmed gzip header that failed to inflate.
	ErrDecompress = errors.New("gzip decompress failed")

	// ErrStructureNotFound reports a payload without the record start
	// marker; nothing can be extracted from it.
	ErrStructureNotFound = errors.New("record structure not found")
)
