package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vigil-cam/vigil/internal/gemini"
	"github.com/vigil-cam/vigil/internal/models"
	"github.com/vigil-cam/vigil/internal/ollama"
	"github.com/vigil-cam/vigil/internal/openai"
	"github.com/vigil-cam/vigil/internal/providers"
)

// DefaultPrompt is the instruction sent with every surveillance frame.
const DefaultPrompt = `Analyze this surveillance image and identify any notable activities, people, or objects.
Look for:
1. Number of people present
2. What activities people are engaged in
3. Any unusual or suspicious behavior
4. Key objects in the scene
5. General description of the environment

Provide a detailed analysis of what you observe in this surveillance footage.`

const defaultRequestTimeout = 60 * time.Second

// NewProvider returns the vision provider for the given name.
func NewProvider(name string) (providers.Provider, error) {
	switch name {
	case "gemini":
		return gemini.New(), nil
	case "openai":
		return openai.New(), nil
	case "ollama":
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// Options tune an Analyzer. Zero values get sensible defaults.
type Options struct {
	Model          string
	Temperature    float64
	Prompt         string
	RequestTimeout time.Duration
}

// Analyzer converts a captured frame into an AnalysisResult. Provider
// failures never escape as errors; they are classified and folded into
// the result so the pipeline can still persist and notify.
type Analyzer struct {
	provider providers.Provider
	opts     Options
}

// New creates an Analyzer on top of a vision provider.
func New(provider providers.Provider, opts Options) *Analyzer {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	return &Analyzer{provider: provider, opts: opts}
}

// Analyze runs one vision request for the frame. No internal retries;
// latency is bounded by the request timeout.
func (a *Analyzer) Analyze(ctx context.Context, frame models.Frame) models.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, a.opts.RequestTimeout)
	defer cancel()

	text, err := a.provider.Analyze(ctx, providers.Config{
		Model:       a.opts.Model,
		Temperature: a.opts.Temperature,
		Prompt:      a.opts.Prompt,
		ImageJPEG:   frame.JPEG,
	})
	if err != nil {
		kind := classify(err)
		slog.Warn("Image analysis failed", "kind", kind, "err", err)
		return models.AnalysisResult{
			OK:      false,
			ErrKind: kind,
			Text:    fmt.Sprintf("Error analyzing image: %v", err),
		}
	}

	return models.AnalysisResult{OK: true, Text: text}
}

func classify(err error) models.AnalysisErrKind {
	switch {
	case errors.Is(err, providers.ErrRejected):
		return models.AnalysisErrServiceRejected
	case errors.Is(err, providers.ErrMalformed):
		return models.AnalysisErrMalformed
	default:
		return models.AnalysisErrTransport
	}
}
