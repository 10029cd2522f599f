package surveil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigil-cam/vigil/internal/camera"
	"github.com/vigil-cam/vigil/internal/models"
)

// FrameSource yields frames from a live stream and owns its reconnect
// logic.
type FrameSource interface {
	Next(ctx context.Context) (models.Frame, error)
	Close() error
}

// Analyzer turns a frame into analysis text; failures arrive as data.
type Analyzer interface {
	Analyze(ctx context.Context, frame models.Frame) models.AnalysisResult
}

// ArtifactStore persists a frame and its analysis under one key.
type ArtifactStore interface {
	Save(frame models.Frame, result models.AnalysisResult) (string, error)
}

// Notifier delivers a message plus optional image to the operator channel.
type Notifier interface {
	Send(ctx context.Context, text string, imageJPEG []byte) models.DeliveryRecord
}

// Journal records one terminal outcome per cycle.
type Journal interface {
	Append(rec models.CycleRecord) error
}

// Stage names the pipeline step a cycle was in when it ended early.
type Stage string

const (
	StageCapturing  Stage = "capturing"
	StageAnalyzing  Stage = "analyzing"
	StagePersisting Stage = "persisting"
	StageNotifying  Stage = "notifying"
)

// Outcome is the terminal state of one cycle. Every cycle gets exactly
// one; no frame is dropped without a recorded cause.
type Outcome string

const (
	// OutcomeProcessed: persisted and at least partially notified.
	OutcomeProcessed Outcome = "processed"
	// OutcomePartial: the frame went through the pipeline but either
	// persistence or notification failed.
	OutcomePartial Outcome = "partial"
	// OutcomeCaptureFailed: no frame, the cycle ended at capture.
	OutcomeCaptureFailed Outcome = "capture_failed"
	// OutcomeAborted: shutdown was requested at a stage boundary.
	OutcomeAborted Outcome = "aborted"
)

// CycleResult is everything the orchestrator knows about one cycle.
type CycleResult struct {
	StartedAt   time.Time
	Elapsed     time.Duration
	Outcome     Outcome
	FailedStage Stage
	Reason      string
	Source      string

	StoredKey string
	StoreErr  string
	Analysis  models.AnalysisResult
	Delivery  models.DeliveryRecord

	connectionLost bool
}

// Config tunes the loop schedule.
type Config struct {
	// Interval between cycle starts; a slow cycle does not shift the
	// schedule, an overrunning one triggers an immediate next cycle.
	Interval time.Duration
	// Duration bounds the total runtime; zero runs until cancelled.
	Duration time.Duration
	Backoff  BackoffConfig
}

// Loop drives the capture→analyze→persist→notify pipeline, one cycle
// in flight at a time.
type Loop struct {
	src      FrameSource
	analyzer Analyzer
	store    ArtifactStore
	notifier Notifier
	journal  Journal // optional
	cfg      Config
	now      func() time.Time
}

// New wires a Loop from its collaborators. journal may be nil.
func New(src FrameSource, analyzer Analyzer, store ArtifactStore, notifier Notifier, journal Journal, cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Loop{
		src:      src,
		analyzer: analyzer,
		store:    store,
		notifier: notifier,
		journal:  journal,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run executes cycles on the configured interval until the context is
// cancelled or the configured duration elapses. A single cycle's
// failure never terminates the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.src.Close(); err != nil {
			slog.Error("Failed to close frame source", "err", err)
		}
	}()

	var deadline time.Time
	if l.cfg.Duration > 0 {
		deadline = l.now().Add(l.cfg.Duration)
	}

	bo := newBackoff(l.cfg.Backoff)
	for {
		start := l.now()
		res := l.runCycle(ctx)
		l.record(res)
		if res.Outcome == OutcomeAborted || ctx.Err() != nil {
			return nil
		}

		wait := nextDelay(start, l.now(), l.cfg.Interval)
		switch {
		case res.connectionLost:
			wait = bo.Next()
			slog.Warn("Camera unreachable, backing off", "wait", wait)
		case res.Outcome != OutcomeCaptureFailed:
			bo.Reset()
		}

		if !deadline.IsZero() && !l.now().Add(wait).Before(deadline) {
			slog.Info("Surveillance duration reached")
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce feeds a pre-supplied frame through the analyze→persist→notify
// stages, sharing the continuous mode's logic and failure semantics.
func (l *Loop) RunOnce(ctx context.Context, frame models.Frame) CycleResult {
	res := l.process(ctx, frame, l.now())
	l.record(res)
	return res
}

func (l *Loop) runCycle(ctx context.Context) CycleResult {
	start := l.now()
	if ctx.Err() != nil {
		return CycleResult{StartedAt: start, Outcome: OutcomeAborted, FailedStage: StageCapturing}
	}

	frame, err := l.src.Next(ctx)
	if err != nil {
		res := CycleResult{
			StartedAt:   start,
			Elapsed:     l.now().Sub(start),
			Outcome:     OutcomeCaptureFailed,
			FailedStage: StageCapturing,
			Reason:      err.Error(),
		}
		if ctx.Err() != nil {
			res.Outcome = OutcomeAborted
			return res
		}
		var ce *camera.CaptureError
		if errors.As(err, &ce) && ce.Kind == camera.ConnectionLost {
			res.connectionLost = true
		}
		return res
	}
	return l.process(ctx, frame, start)
}

// process runs the stages after capture. Analysis failure flows forward
// as data; storage failure is logged and notification still happens so
// operators stay informed. Shutdown is honored at stage boundaries only.
func (l *Loop) process(ctx context.Context, frame models.Frame, start time.Time) (res CycleResult) {
	res = CycleResult{StartedAt: start, Source: frame.Source}
	defer func() { res.Elapsed = l.now().Sub(start) }()

	if aborted(ctx, &res, StageAnalyzing) {
		return res
	}
	res.Analysis = l.analyzer.Analyze(ctx, frame)

	if aborted(ctx, &res, StagePersisting) {
		return res
	}
	key, err := l.store.Save(frame, res.Analysis)
	if err != nil {
		res.StoreErr = err.Error()
		slog.Error("Artifact persistence failed, continuing to notify", "err", err)
	} else {
		res.StoredKey = key
	}

	if aborted(ctx, &res, StageNotifying) {
		return res
	}
	res.Delivery = l.notifier.Send(ctx, formatMessage(frame, res.Analysis), frame.JPEG)

	res.finalize()
	return res
}

func aborted(ctx context.Context, res *CycleResult, next Stage) bool {
	if ctx.Err() == nil {
		return false
	}
	res.Outcome = OutcomeAborted
	res.FailedStage = next
	res.Reason = ctx.Err().Error()
	return true
}

// finalize derives the terminal outcome from the persist and notify
// results.
func (r *CycleResult) finalize() {
	stored := r.StoreErr == ""
	delivered := r.Delivery.Delivered()
	switch {
	case stored && delivered:
		r.Outcome = OutcomeProcessed
	case stored:
		r.Outcome = OutcomePartial
		r.FailedStage = StageNotifying
		r.Reason = firstNonEmpty(r.Delivery.TextErr, r.Delivery.ImageErr, "notification failed")
	case delivered:
		r.Outcome = OutcomePartial
		r.FailedStage = StagePersisting
		r.Reason = r.StoreErr
	default:
		r.Outcome = OutcomePartial
		r.FailedStage = StagePersisting
		r.Reason = fmt.Sprintf("persistence and notification both failed: %s", r.StoreErr)
	}
}

// record emits the one observable outcome per cycle: a log line and,
// when a journal is configured, a durable row.
func (l *Loop) record(res CycleResult) {
	attrs := []any{
		"outcome", res.Outcome,
		"elapsed", res.Elapsed.Round(time.Millisecond),
	}
	if res.FailedStage != "" {
		attrs = append(attrs, "stage", res.FailedStage, "reason", res.Reason)
	}
	if res.StoredKey != "" {
		attrs = append(attrs, "key", res.StoredKey)
	}
	switch res.Outcome {
	case OutcomeProcessed:
		slog.Info("Cycle complete", attrs...)
	default:
		slog.Warn("Cycle ended early", attrs...)
	}

	if l.journal == nil {
		return
	}
	if err := l.journal.Append(models.CycleRecord{
		StartedAt:      res.StartedAt,
		Source:         res.Source,
		Outcome:        string(res.Outcome),
		FailedStage:    string(res.FailedStage),
		Reason:         res.Reason,
		StoredKey:      res.StoredKey,
		AnalysisOK:     res.Analysis.OK,
		TextDelivered:  res.Delivery.TextOK,
		ImageDelivered: res.Delivery.ImageOK,
		ElapsedMS:      res.Elapsed.Milliseconds(),
	}); err != nil {
		slog.Error("Failed to journal cycle outcome", "err", err)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// nextDelay schedules cycle starts interval apart, measured from cycle
// start. An overrunning cycle yields zero: the next cycle starts
// immediately, and late cycles are never queued up.
func nextDelay(start, now time.Time, interval time.Duration) time.Duration {
	d := interval - now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// formatMessage builds the operator-facing notification in the Telegram
// HTML dialect.
func formatMessage(frame models.Frame, result models.AnalysisResult) string {
	header := "🔍 <b>Surveillance Analysis</b>"
	if !result.OK {
		header = "⚠️ <b>Surveillance Analysis Failed</b>"
	}
	return fmt.Sprintf("%s\n\n⏱️ <b>Timestamp:</b> %s\n\n📝 <b>Analysis:</b>\n%s",
		header,
		frame.CapturedAt.Format("2006-01-02 15:04:05"),
		result.Text,
	)
}
