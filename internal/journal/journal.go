package journal

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/vigil-cam/vigil/internal/models"
)

// Writer appends one CycleRecord per completed cycle to a parquet file,
// giving every frame a durable terminal outcome that survives the
// process. Rows are flushed on Close.
type Writer struct {
	file *os.File
	pw   *parquet.GenericWriter[models.CycleRecord]
}

// Open creates (or truncates) the journal file at path.
func Open(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal file: %w", err)
	}
	return &Writer{
		file: f,
		pw:   parquet.NewGenericWriter[models.CycleRecord](f),
	}, nil
}

// Append writes one cycle outcome row.
func (w *Writer) Append(rec models.CycleRecord) error {
	if _, err := w.pw.Write([]models.CycleRecord{rec}); err != nil {
		return fmt.Errorf("failed to write journal row: %w", err)
	}
	return nil
}

// Close flushes buffered rows and the parquet footer.
func (w *Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to finalize journal: %w", err)
	}
	return w.file.Close()
}

// Read loads every cycle record from a journal file.
func Read(path string) ([]models.CycleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat journal file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[models.CycleRecord](pf)
	defer reader.Close()

	records := make([]models.CycleRecord, 0, reader.NumRows())
	buf := make([]models.CycleRecord, 64)
	for {
		n, err := reader.Read(buf)
		records = append(records, buf[:n]...)
		if err != nil {
			break
		}
	}
	return records, nil
}
