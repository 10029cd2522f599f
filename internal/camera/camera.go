package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/vigil-cam/vigil/internal/models"
)

const (
	defaultReadTimeout    = 3 * time.Second
	defaultConnectTimeout = 5 * time.Second

	// scanner limits for the MJPEG stream; a 1080p JPEG is well under 4MB
	scanInitialBuf = 1 << 20
	scanMaxBuf     = 16 << 20
)

// stream is one live connection: a channel of decoded JPEG frames, a
// done channel closed when the producer dies, and a stop function.
type stream struct {
	frames <-chan []byte
	done   <-chan struct{}
	stop   func()
	url    string
}

type startFunc func(ctx context.Context, rtspURL string) (*stream, error)

// Options tune a Source. Zero values get sensible defaults.
type Options struct {
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration
	FFmpegPath     string
}

// Source pulls frames from an RTSP camera through a long-lived ffmpeg
// process. The connection is established lazily on first use and
// re-established automatically after read failures. Not safe for
// concurrent use; the orchestrator owns it exclusively.
type Source struct {
	endpoint       Endpoint
	readTimeout    time.Duration
	connectTimeout time.Duration

	start startFunc
	state State
	conn  *stream
}

// New creates a Source for the given endpoint. No connection is made
// until the first call to Next or Open.
func New(endpoint Endpoint, opts Options) *Source {
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	return &Source{
		endpoint:       endpoint,
		readTimeout:    opts.ReadTimeout,
		connectTimeout: opts.ConnectTimeout,
		start: func(ctx context.Context, rtspURL string) (*stream, error) {
			return startFFmpeg(ctx, ffmpeg, rtspURL)
		},
		state: Disconnected,
	}
}

// State reports the current connection state.
func (s *Source) State() State { return s.state }

// Open tries each candidate RTSP URL until one delivers a probe frame
// within the connect timeout. The probe frame is discarded.
func (s *Source) Open(ctx context.Context) error {
	s.teardown()
	s.state = s.state.next(evOpen)

	var lastErr error
	for _, rtspURL := range s.endpoint.CandidateURLs() {
		slog.Info("Attempting camera connection", "camera", s.endpoint.IP)
		conn, err := s.start(ctx, rtspURL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := s.probe(ctx, conn); err != nil {
			lastErr = err
			conn.stop()
			continue
		}
		s.conn = conn
		s.state = s.state.next(evConnectOK)
		slog.Info("Camera connected", "camera", s.endpoint.IP)
		return nil
	}

	s.state = s.state.next(evConnectFail)
	return &ConnectError{Endpoint: s.endpoint.IP, Err: lastErr}
}

// probe waits for the first frame to prove the stream is live.
func (s *Source) probe(ctx context.Context, conn *stream) error {
	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()
	select {
	case <-conn.frames:
		return nil
	case <-conn.done:
		return errors.New("stream ended before first frame")
	case <-timer.C:
		return fmt.Errorf("no frame within %s", s.connectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next frame. A read timeout keeps the connection; a
// dead connection triggers exactly one reconnect attempt before the
// error is surfaced as ConnectionLost.
func (s *Source) Next(ctx context.Context) (models.Frame, error) {
	if s.state != Connected {
		if err := s.Open(ctx); err != nil {
			return models.Frame{}, &CaptureError{Kind: ConnectionLost, Err: err}
		}
	}

	frame, err := s.read(ctx)
	if err == nil {
		return frame, nil
	}
	var ce *CaptureError
	if errors.As(err, &ce) && ce.Kind == Timeout {
		return models.Frame{}, err
	}
	if ctx.Err() != nil {
		return models.Frame{}, err
	}

	// connection-level failure: one reconnect, then give up for this call
	slog.Warn("Camera stream lost, reconnecting", "camera", s.endpoint.IP, "err", err)
	s.teardown()
	s.state = s.state.next(evReadFail)
	if oerr := s.Open(ctx); oerr != nil {
		return models.Frame{}, &CaptureError{Kind: ConnectionLost, Err: oerr}
	}
	return s.read(ctx)
}

func (s *Source) read(ctx context.Context) (models.Frame, error) {
	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()
	select {
	case b := <-s.conn.frames:
		return models.Frame{
			JPEG:       b,
			CapturedAt: time.Now(),
			Source:     s.endpoint.IP,
		}, nil
	case <-s.conn.done:
		return models.Frame{}, &CaptureError{Kind: ConnectionLost, Err: errors.New("stream process exited")}
	case <-timer.C:
		return models.Frame{}, &CaptureError{Kind: Timeout, Err: fmt.Errorf("no frame within %s", s.readTimeout)}
	case <-ctx.Done():
		return models.Frame{}, ctx.Err()
	}
}

func (s *Source) teardown() {
	if s.conn != nil {
		s.conn.stop()
		s.conn = nil
	}
}

// Close releases the camera connection.
func (s *Source) Close() error {
	s.teardown()
	s.state = s.state.next(evClose)
	slog.Info("Camera disconnected", "camera", s.endpoint.IP)
	return nil
}

// startFFmpeg launches ffmpeg reading the RTSP stream and emitting an
// MJPEG stream on stdout, with a goroutine splitting it into frames.
// The frame channel holds only the newest frame; stale frames are
// dropped so Next always sees a current image.
func startFFmpeg(ctx context.Context, ffmpegPath, rtspURL string) (*stream, error) {
	cmd := exec.Command(ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-vf", "fps=1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frames := make(chan []byte, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, scanInitialBuf), scanMaxBuf)
		scanner.Split(scanJPEGs)
		for scanner.Scan() {
			// the scanner reuses its buffer, so copy the frame out
			frame := append([]byte(nil), scanner.Bytes()...)
			select {
			case frames <- frame:
			default:
				select {
				case <-frames:
				default:
				}
				frames <- frame
			}
		}
		_ = cmd.Wait()
	}()

	stop := func() {
		_ = cmd.Process.Kill()
		<-done
	}
	return &stream{frames: frames, done: done, stop: stop, url: rtspURL}, nil
}
