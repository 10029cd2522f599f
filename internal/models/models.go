package models

import "time"

// Frame is one captured image plus its capture metadata. Immutable once
// captured; it lives for a single pipeline pass.
type Frame struct {
	JPEG       []byte
	CapturedAt time.Time
	Source     string
}

// AnalysisErrKind classifies why a vision provider call failed.
type AnalysisErrKind string

const (
	AnalysisErrNone            AnalysisErrKind = ""
	AnalysisErrTransport       AnalysisErrKind = "transport"
	AnalysisErrServiceRejected AnalysisErrKind = "service_rejected"
	AnalysisErrMalformed       AnalysisErrKind = "malformed"
)

// AnalysisResult is the outcome of analyzing one Frame. Failures are data,
// not errors: Text carries a human-readable failure description so the
// pipeline can still persist and notify.
type AnalysisResult struct {
	Text    string
	OK      bool
	ErrKind AnalysisErrKind
}

// DeliveryRecord is the composite outcome of one notification: the text
// message and the photo are attempted independently.
type DeliveryRecord struct {
	TextOK       bool
	ImageOK      bool
	ImageOmitted bool
	TextErr      string
	ImageErr     string
}

// Delivered reports whether anything at all reached the channel.
func (d DeliveryRecord) Delivered() bool {
	return d.TextOK || d.ImageOK
}

// CycleRecord is one row of the cycle journal: the terminal outcome of a
// single capture→analyze→persist→notify pass.
type CycleRecord struct {
	StartedAt      time.Time `parquet:"started_at"`
	Source         string    `parquet:"source"`
	Outcome        string    `parquet:"outcome"`
	FailedStage    string    `parquet:"failed_stage,optional"`
	Reason         string    `parquet:"reason,optional"`
	StoredKey      string    `parquet:"stored_key,optional"`
	AnalysisOK     bool      `parquet:"analysis_ok"`
	TextDelivered  bool      `parquet:"text_delivered"`
	ImageDelivered bool      `parquet:"image_delivered"`
	ElapsedMS      int64     `parquet:"elapsed_ms"`
}
