package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vigil-cam/vigil/internal/models"
	"gopkg.in/yaml.v3"
)

// keyFormat makes keys sortable and unique at one-per-second granularity.
const keyFormat = "20060102_150405"

// StorageErrorKind distinguishes a half-written artifact pair from a
// plain I/O failure.
type StorageErrorKind string

const (
	// PartialWrite means the image reached disk but its analysis
	// sidecar did not; the key names a data-integrity gap.
	PartialWrite StorageErrorKind = "partial_write"
	IOFailure    StorageErrorKind = "io_failure"
)

// StorageError is a failed artifact write.
type StorageError struct {
	Kind StorageErrorKind
	Key  string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("artifact write failed (%s) for key %s: %v", e.Kind, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// artifact is the YAML sidecar written next to each frame image.
type artifact struct {
	Timestamp string `yaml:"timestamp"`
	Source    string `yaml:"source"`
	ImagePath string `yaml:"image_path"`
	OK        bool   `yaml:"ok"`
	ErrorKind string `yaml:"error_kind,omitempty"`
	Analysis  string `yaml:"analysis"`
}

// Store persists each frame and its analysis as two related files under
// a timestamp-derived key: images/frame_<key>.jpg and
// analysis/analysis_<key>.yaml.
type Store struct {
	imageDir    string
	analysisDir string
}

// New creates the artifact directories under baseDir.
func New(baseDir string) (*Store, error) {
	s := &Store{
		imageDir:    filepath.Join(baseDir, "images"),
		analysisDir: filepath.Join(baseDir, "analysis"),
	}
	for _, dir := range []string{s.imageDir, s.analysisDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return s, nil
}

// Save writes the frame image and its analysis sidecar. A sidecar
// failure after the image reached disk is a PartialWrite; the caller
// logs it as an integrity gap but does not retry.
func (s *Store) Save(frame models.Frame, result models.AnalysisResult) (string, error) {
	key := frame.CapturedAt.Format(keyFormat)
	imagePath := s.ImagePath(key)

	if err := os.WriteFile(imagePath, frame.JPEG, 0o644); err != nil {
		return "", &StorageError{Kind: IOFailure, Key: key, Err: err}
	}

	data, err := yaml.Marshal(artifact{
		Timestamp: frame.CapturedAt.Format(time.RFC3339),
		Source:    frame.Source,
		ImagePath: imagePath,
		OK:        result.OK,
		ErrorKind: string(result.ErrKind),
		Analysis:  result.Text,
	})
	if err != nil {
		return "", &StorageError{Kind: PartialWrite, Key: key, Err: err}
	}
	if err := os.WriteFile(s.AnalysisPath(key), data, 0o644); err != nil {
		return "", &StorageError{Kind: PartialWrite, Key: key, Err: err}
	}

	return key, nil
}

// ImagePath returns the image file location for a key.
func (s *Store) ImagePath(key string) string {
	return filepath.Join(s.imageDir, "frame_"+key+".jpg")
}

// AnalysisPath returns the analysis sidecar location for a key.
func (s *Store) AnalysisPath(key string) string {
	return filepath.Join(s.analysisDir, "analysis_"+key+".yaml")
}
