package recorder

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/biotel-io/camsync/iox"
	"github.com/biotel-io/camsync/types"
)

// indexWriter writes the timestamp index: a CSV with a header row followed by
// one row per successfully captured frame. Rows are flushed on Close; the
// index for a session with N captured frames has exactly N+1 lines.
type indexWriter struct {
	f *os.File
	w *csv.Writer
}

// newIndexWriter creates the index file and writes the header row.
func newIndexWriter(path string) (*indexWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{"frame_number", "timestamp"}); err != nil {
		iox.DiscardClose(f)
		return nil, err
	}

	return &indexWriter{f: f, w: w}, nil
}

// Append writes one frame record row.
func (iw *indexWriter) Append(rec types.FrameRecord) error {
	return iw.w.Write([]string{
		strconv.FormatUint(rec.FrameNumber, 10),
		rec.Timestamp.Format(time.RFC3339Nano),
	})
}

// Close flushes buffered rows and closes the file.
func (iw *indexWriter) Close() error {
	iw.w.Flush()
	if err := iw.w.Error(); err != nil {
		iox.DiscardClose(iw.f)
		return err
	}
	return iw.f.Close()
}
