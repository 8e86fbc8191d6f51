package merge

import (
	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/fio"
	"github.com/flashkv/flashkv/internal/record"
	"github.com/flashkv/flashkv/internal/segment"
)

// stagingWriter appends rewritten records into a fresh, self-rotating
// sequence of numbered segment files inside the merge staging
// directory, without importing internal/engine, since internal/engine
// already imports this package. Unlike the engine, which rotates before
// a write would overshoot DataFileSize, it rotates only once the
// current file has already reached maxSize, so a staged file may end
// up larger than maxSize by up to one record.
type stagingWriter struct {
	dir      string
	maxSize  int64
	log      *zap.SugaredLogger
	nextID   uint32
	current  *segment.Segment
	finished []*segment.Segment
}

func newStagingWriter(dir string, maxSize int64, log *zap.SugaredLogger) *stagingWriter {
	return &stagingWriter{dir: dir, maxSize: maxSize, log: log}
}

func (w *stagingWriter) write(rec record.Record) (record.Position, error) {
	if w.current == nil {
		if err := w.rotate(); err != nil {
			return record.Position{}, err
		}
	} else if size, err := w.current.Size(); err != nil {
		return record.Position{}, err
	} else if size >= w.maxSize {
		if err := w.rotate(); err != nil {
			return record.Position{}, err
		}
	}

	buf := record.Encode(rec)
	return w.current.Write(buf)
}

func (w *stagingWriter) rotate() error {
	if w.current != nil {
		if err := w.current.Sync(); err != nil {
			return err
		}
		if err := w.current.Close(); err != nil {
			return err
		}
		w.finished = append(w.finished, w.current)
	}

	seg, err := segment.Open(w.dir, w.nextID, fio.KindFile, w.log)
	if err != nil {
		return err
	}
	w.nextID++
	w.current = seg
	return nil
}

func (w *stagingWriter) close() error {
	if w.current == nil {
		return nil
	}
	if err := w.current.Sync(); err != nil {
		return err
	}
	return w.current.Close()
}
