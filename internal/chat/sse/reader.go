// Package sse reads line-oriented streaming response bodies: both
// server-sent events and the JSON-lines framing some vendors use.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineSize bounds a single stream line. Vendor chunks are small;
// anything past this is a broken stream.
const maxLineSize = 1024 * 1024

var dataPrefix = []byte("data:")

// Reader yields non-empty stream lines with line endings and SSE
// comments stripped.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps an HTTP response body.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next meaningful line, or io.EOF when the stream
// ends. Blank lines and ":" comment lines are skipped.
func (r *Reader) Next() ([]byte, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSuffix(r.scanner.Bytes(), []byte("\r"))
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		return line, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Data extracts the payload of a "data:" line. It reports false for
// any other field, such as "event:" or "id:" lines.
func Data(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	return bytes.TrimPrefix(line[len(dataPrefix):], []byte(" ")), true
}
