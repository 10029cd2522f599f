package surveil

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vigil-cam/vigil/internal/camera"
	"github.com/vigil-cam/vigil/internal/models"
)

type fakeSource struct {
	calls  int
	onNext func(call int) (models.Frame, error)
	closed bool
}

func (f *fakeSource) Next(ctx context.Context) (models.Frame, error) {
	f.calls++
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	return f.onNext(f.calls)
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeAnalyzer struct {
	result    models.AnalysisResult
	calls     int
	onAnalyze func()
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, frame models.Frame) models.AnalysisResult {
	f.calls++
	if f.onAnalyze != nil {
		f.onAnalyze()
	}
	return f.result
}

type fakeStore struct {
	key     string
	err     error
	calls   int
	results []models.AnalysisResult
}

func (f *fakeStore) Save(frame models.Frame, result models.AnalysisResult) (string, error) {
	f.calls++
	f.results = append(f.results, result)
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

type fakeNotifier struct {
	record models.DeliveryRecord
	calls  int
	texts  []string
	images [][]byte
}

func (f *fakeNotifier) Send(ctx context.Context, text string, imageJPEG []byte) models.DeliveryRecord {
	f.calls++
	f.texts = append(f.texts, text)
	f.images = append(f.images, imageJPEG)
	return f.record
}

type fakeJournal struct {
	rows []models.CycleRecord
}

func (f *fakeJournal) Append(rec models.CycleRecord) error {
	f.rows = append(f.rows, rec)
	return nil
}

func okDelivery() models.DeliveryRecord {
	return models.DeliveryRecord{TextOK: true, ImageOK: true}
}

func testFrame() models.Frame {
	return models.Frame{
		JPEG:       []byte{0xFF, 0xD8, 0xFF, 0xD9},
		CapturedAt: time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC),
		Source:     "192.168.1.130",
	}
}

func newTestLoop(src FrameSource, a Analyzer, st ArtifactStore, n Notifier, j Journal, cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = time.Millisecond
	}
	l := New(src, a, st, n, j, cfg)
	return l
}

func TestEveryCycleGetsExactlyOneOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{}
	src.onNext = func(call int) (models.Frame, error) {
		if call == 4 {
			cancel()
			return models.Frame{}, ctx.Err()
		}
		return testFrame(), nil
	}
	journal := &fakeJournal{}
	loop := newTestLoop(src,
		&fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "quiet"}},
		&fakeStore{key: "k"},
		&fakeNotifier{record: okDelivery()},
		journal,
		Config{})

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(journal.rows) != 4 {
		t.Fatalf("Expected one outcome per cycle (4), got %d", len(journal.rows))
	}
	for i := 0; i < 3; i++ {
		if journal.rows[i].Outcome != string(OutcomeProcessed) {
			t.Errorf("Cycle %d: expected processed, got %s", i, journal.rows[i].Outcome)
		}
	}
	if journal.rows[3].Outcome != string(OutcomeAborted) {
		t.Errorf("Expected final cycle aborted by shutdown, got %s", journal.rows[3].Outcome)
	}
	if !src.closed {
		t.Error("Expected frame source closed on loop exit")
	}
}

func TestAnalysisFailureStillPersistsAndNotifies(t *testing.T) {
	failed := models.AnalysisResult{
		OK:      false,
		ErrKind: models.AnalysisErrTransport,
		Text:    "Error analyzing image: backend down",
	}
	store := &fakeStore{key: "k"}
	notifier := &fakeNotifier{record: okDelivery()}
	loop := newTestLoop(&fakeSource{}, &fakeAnalyzer{result: failed}, store, notifier, nil, Config{})

	res := loop.RunOnce(context.Background(), testFrame())

	if store.calls != 1 {
		t.Fatalf("Expected store invoked despite analysis failure, got %d calls", store.calls)
	}
	if store.results[0].OK {
		t.Error("Expected failed analysis persisted as-is")
	}
	if notifier.calls != 1 {
		t.Fatalf("Expected notifier invoked despite analysis failure, got %d calls", notifier.calls)
	}
	if !strings.Contains(notifier.texts[0], "backend down") {
		t.Errorf("Expected failure text in notification, got %q", notifier.texts[0])
	}
	if !strings.Contains(notifier.texts[0], "Failed") {
		t.Errorf("Expected failure header in notification, got %q", notifier.texts[0])
	}
	if res.Outcome != OutcomeProcessed {
		t.Errorf("Expected processed outcome (operators informed), got %s", res.Outcome)
	}
}

func TestCaptureFailureShortCircuitsCycle(t *testing.T) {
	src := &fakeSource{onNext: func(int) (models.Frame, error) {
		return models.Frame{}, &camera.CaptureError{Kind: camera.ConnectionLost, Err: errors.New("camera offline")}
	}}
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{OK: true}}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	loop := newTestLoop(src, analyzer, store, notifier, nil, Config{})

	res := loop.runCycle(context.Background())

	if res.Outcome != OutcomeCaptureFailed {
		t.Fatalf("Expected capture failure outcome, got %s", res.Outcome)
	}
	if res.FailedStage != StageCapturing {
		t.Errorf("Expected capturing stage, got %s", res.FailedStage)
	}
	if !res.connectionLost {
		t.Error("Expected connection loss flagged for backoff")
	}
	if analyzer.calls != 0 || store.calls != 0 || notifier.calls != 0 {
		t.Error("Expected remaining stages skipped after capture failure")
	}
}

func TestCaptureTimeoutDoesNotTriggerBackoff(t *testing.T) {
	src := &fakeSource{onNext: func(int) (models.Frame, error) {
		return models.Frame{}, &camera.CaptureError{Kind: camera.Timeout}
	}}
	loop := newTestLoop(src, &fakeAnalyzer{}, &fakeStore{}, &fakeNotifier{}, nil, Config{})

	res := loop.runCycle(context.Background())

	if res.Outcome != OutcomeCaptureFailed {
		t.Fatalf("Expected capture failure outcome, got %s", res.Outcome)
	}
	if res.connectionLost {
		t.Error("A frame-level timeout must not be treated as a lost connection")
	}
}

func TestPartialDeliveryIsNotRetried(t *testing.T) {
	notifier := &fakeNotifier{record: models.DeliveryRecord{TextOK: true, ImageOK: false, ImageErr: "rate limited"}}
	store := &fakeStore{key: "k"}
	loop := newTestLoop(&fakeSource{}, &fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "x"}}, store, notifier, nil, Config{})

	res := loop.RunOnce(context.Background(), testFrame())

	if !res.Delivery.TextOK || res.Delivery.ImageOK {
		t.Fatalf("Expected textOk/imageFailed record, got %+v", res.Delivery)
	}
	if notifier.calls != 1 {
		t.Errorf("Expected exactly one delivery attempt, got %d", notifier.calls)
	}
	if res.Outcome != OutcomeProcessed {
		t.Errorf("Expected partial delivery still counted as processed, got %s", res.Outcome)
	}
}

func TestNotificationFailureYieldsPartialOutcome(t *testing.T) {
	notifier := &fakeNotifier{record: models.DeliveryRecord{TextErr: "auth failed", ImageErr: "auth failed"}}
	loop := newTestLoop(&fakeSource{}, &fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "x"}}, &fakeStore{key: "k"}, notifier, nil, Config{})

	res := loop.RunOnce(context.Background(), testFrame())

	if res.Outcome != OutcomePartial {
		t.Fatalf("Expected partial outcome, got %s", res.Outcome)
	}
	if res.FailedStage != StageNotifying {
		t.Errorf("Expected notifying stage recorded, got %s", res.FailedStage)
	}
	if res.StoredKey != "k" {
		t.Errorf("Expected artifacts persisted, got key %q", res.StoredKey)
	}
}

func TestStorageFailureStillNotifies(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	notifier := &fakeNotifier{record: okDelivery()}
	loop := newTestLoop(&fakeSource{}, &fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "x"}}, store, notifier, nil, Config{})

	res := loop.RunOnce(context.Background(), testFrame())

	if notifier.calls != 1 {
		t.Fatal("Expected notification despite storage failure")
	}
	if res.Outcome != OutcomePartial {
		t.Fatalf("Expected partial outcome, got %s", res.Outcome)
	}
	if res.FailedStage != StagePersisting {
		t.Errorf("Expected persisting stage recorded, got %s", res.FailedStage)
	}
	if res.StoreErr == "" {
		t.Error("Expected storage failure reason recorded")
	}
}

func TestSingleShotMode(t *testing.T) {
	store := &fakeStore{key: "20250314_150926"}
	notifier := &fakeNotifier{record: okDelivery()}
	loop := newTestLoop(&fakeSource{},
		&fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "test-result"}},
		store, notifier, nil, Config{})

	frame := testFrame()
	res := loop.RunOnce(context.Background(), frame)

	if store.calls != 1 {
		t.Fatalf("Expected exactly one save, got %d", store.calls)
	}
	if store.results[0].Text != "test-result" {
		t.Errorf("Expected analysis text saved, got %q", store.results[0].Text)
	}
	if notifier.calls != 1 {
		t.Fatalf("Expected exactly one send, got %d", notifier.calls)
	}
	if !strings.Contains(notifier.texts[0], "test-result") {
		t.Errorf("Expected analysis text notified, got %q", notifier.texts[0])
	}
	if string(notifier.images[0]) != string(frame.JPEG) {
		t.Error("Expected frame image notified")
	}
	if res.Outcome != OutcomeProcessed {
		t.Errorf("Expected processed outcome, got %s", res.Outcome)
	}
}

func TestShutdownHonoredAtStageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	analyzer := &fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "x"}}
	analyzer.onAnalyze = cancel
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	loop := newTestLoop(&fakeSource{}, analyzer, store, notifier, nil, Config{})

	res := loop.process(ctx, testFrame(), time.Now())

	if res.Outcome != OutcomeAborted {
		t.Fatalf("Expected aborted outcome, got %s", res.Outcome)
	}
	if res.FailedStage != StagePersisting {
		t.Errorf("Expected abort at persisting boundary, got %s", res.FailedStage)
	}
	if store.calls != 0 || notifier.calls != 0 {
		t.Error("Expected no further stages after shutdown")
	}
}

func TestNextDelay(t *testing.T) {
	base := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		elapsed  time.Duration
		interval time.Duration
		expected time.Duration
	}{
		{"fast cycle keeps schedule", 5 * time.Second, 60 * time.Second, 55 * time.Second},
		{"instant cycle waits full interval", 0, 60 * time.Second, 60 * time.Second},
		{"exact interval starts immediately", 60 * time.Second, 60 * time.Second, 0},
		{"overrun starts immediately, no negative wait", 70 * time.Second, 60 * time.Second, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextDelay(base, base.Add(tt.elapsed), tt.interval)
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRunHonorsDuration(t *testing.T) {
	src := &fakeSource{onNext: func(int) (models.Frame, error) {
		return testFrame(), nil
	}}
	journal := &fakeJournal{}
	loop := newTestLoop(src,
		&fakeAnalyzer{result: models.AnalysisResult{OK: true, Text: "x"}},
		&fakeStore{key: "k"},
		&fakeNotifier{record: okDelivery()},
		journal,
		Config{Interval: 5 * time.Millisecond, Duration: 12 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop at configured duration")
	}
	if len(journal.rows) == 0 {
		t.Error("Expected at least one cycle before the duration elapsed")
	}
}

func TestFormatMessageUsesFailureHeader(t *testing.T) {
	frame := testFrame()

	ok := formatMessage(frame, models.AnalysisResult{OK: true, Text: "all quiet"})
	if !strings.Contains(ok, "Surveillance Analysis</b>") || strings.Contains(ok, "Failed") {
		t.Errorf("Unexpected success message: %q", ok)
	}
	if !strings.Contains(ok, "2025-03-14 15:09:26") {
		t.Errorf("Expected capture timestamp in message, got %q", ok)
	}

	bad := formatMessage(frame, models.AnalysisResult{OK: false, Text: "Error analyzing image"})
	if !strings.Contains(bad, "Failed") {
		t.Errorf("Expected failure header, got %q", bad)
	}
}
