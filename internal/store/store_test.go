package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vigil-cam/vigil/internal/models"
	"gopkg.in/yaml.v3"
)

func testFrame(t time.Time) models.Frame {
	return models.Frame{
		JPEG:       []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9},
		CapturedAt: t,
		Source:     "192.168.1.130",
	}
}

func TestSaveWritesBothArtifacts(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	capturedAt := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	key, err := s.Save(testFrame(capturedAt), models.AnalysisResult{OK: true, Text: "empty hallway"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if key != "20250314_150926" {
		t.Errorf("Expected timestamp-derived key, got %q", key)
	}

	img, err := os.ReadFile(s.ImagePath(key))
	if err != nil {
		t.Fatalf("Image not written: %v", err)
	}
	if len(img) != 6 {
		t.Errorf("Expected 6 image bytes, got %d", len(img))
	}

	data, err := os.ReadFile(s.AnalysisPath(key))
	if err != nil {
		t.Fatalf("Analysis sidecar not written: %v", err)
	}
	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		t.Fatalf("Sidecar is not valid YAML: %v", err)
	}
	if a.Analysis != "empty hallway" {
		t.Errorf("Expected analysis text, got %q", a.Analysis)
	}
	if !a.OK {
		t.Error("Expected ok flag in sidecar")
	}
	if a.Source != "192.168.1.130" {
		t.Errorf("Expected source in sidecar, got %q", a.Source)
	}
}

func TestSavePersistsFailedAnalysis(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	result := models.AnalysisResult{
		OK:      false,
		ErrKind: models.AnalysisErrTransport,
		Text:    "Error analyzing image: connection reset",
	}
	key, err := s.Save(testFrame(time.Now()), result)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(s.AnalysisPath(key))
	if err != nil {
		t.Fatalf("Analysis sidecar not written: %v", err)
	}
	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		t.Fatalf("Sidecar is not valid YAML: %v", err)
	}
	if a.OK {
		t.Error("Expected failure recorded in sidecar")
	}
	if a.ErrorKind != "transport" {
		t.Errorf("Expected error kind in sidecar, got %q", a.ErrorKind)
	}
}

func TestSaveKeysSortByCaptureTime(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	earlier := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	later := earlier.Add(60 * time.Second)

	k1, err := s.Save(testFrame(earlier), models.AnalysisResult{OK: true})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	k2, err := s.Save(testFrame(later), models.AnalysisResult{OK: true})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if k1 >= k2 {
		t.Errorf("Expected lexically sortable keys, got %q then %q", k1, k2)
	}
}

func TestSaveReportsPartialWrite(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission failures are not enforceable as root")
	}
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// make the sidecar directory unwritable so only the image lands
	if err := os.Chmod(s.analysisDir, 0o555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(s.analysisDir, 0o755) })

	_, err = s.Save(testFrame(time.Now()), models.AnalysisResult{OK: true, Text: "x"})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if se.Kind != PartialWrite {
		t.Errorf("Expected partial write kind, got %q", se.Kind)
	}
	if _, statErr := os.Stat(s.ImagePath(se.Key)); statErr != nil {
		t.Errorf("Expected image on disk despite sidecar failure: %v", statErr)
	}
}

func TestSaveReportsIOFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission failures are not enforceable as root")
	}
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := os.Chmod(s.imageDir, 0o555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(s.imageDir, 0o755) })

	_, err = s.Save(testFrame(time.Now()), models.AnalysisResult{OK: true})
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StorageError, got %v", err)
	}
	if se.Kind != IOFailure {
		t.Errorf("Expected io failure kind, got %q", se.Kind)
	}
}
