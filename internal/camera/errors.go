package camera

import "fmt"

// ConnectError reports that no candidate RTSP URL produced a frame.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to connect to camera %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("failed to connect to camera %s", e.Endpoint)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CaptureErrorKind distinguishes a dead connection from a frame-level hiccup.
type CaptureErrorKind string

const (
	// ConnectionLost means the stream is gone and a reconnect already failed.
	ConnectionLost CaptureErrorKind = "connection_lost"
	// Timeout means no frame arrived within the read timeout; the
	// connection itself is kept.
	Timeout CaptureErrorKind = "timeout"
)

// CaptureError is a failed frame read.
type CaptureError struct {
	Kind CaptureErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame capture failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("frame capture failed (%s)", e.Kind)
}

func (e *CaptureError) Unwrap() error { return e.Err }
