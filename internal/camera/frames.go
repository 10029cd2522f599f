package camera

import "bytes"

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// scanJPEGs is a bufio.SplitFunc that carves whole JPEG images out of a
// concatenated MJPEG byte stream by scanning for SOI/EOI markers. Bytes
// before the first SOI (stream garbage, partial frames after a
// reconnect) are discarded.
func scanJPEGs(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// keep the last byte in case it is the first half of a marker
		if len(data) > 0 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	frameEnd := start + 2 + end + 2
	return frameEnd, data[start:frameEnd], nil
}
