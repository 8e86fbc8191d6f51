package merge

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/flashkv/flashkv/internal/segment"
	"github.com/flashkv/flashkv/pkg/options"
)

// LoadMergeFiles runs at the start of every engine Open. It never runs
// concurrently with a live engine, so it is the only place a merge's
// staged output is ever promoted into the live data directory: finding
// an incomplete merge (no merge-finished marker) means a prior merge
// crashed mid-run, and the staging directory is simply discarded; an
// incomplete merge never reaches the live directory regardless of how
// far it got.
func LoadMergeFiles(dirPath string, log *zap.SugaredLogger) error {
	dir := stagingDir(dirPath)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	markerPath := filepath.Join(dir, options.MergeFinishedFileName)
	if _, err := os.Stat(markerPath); os.IsNotExist(err) {
		log.Warnw("discarding incomplete merge", "dir", dir)
		return os.RemoveAll(dir)
	}

	finished, err := segment.OpenMergeFinishedFile(dir, log)
	if err != nil {
		return err
	}
	rec, _, err := finished.ReadRecordAt(0)
	if err != nil {
		finished.Close()
		return err
	}
	if err := finished.Close(); err != nil {
		return err
	}
	boundary, err := decodeBoundary(rec.Value)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != options.DataFileSuffix {
			continue
		}
		idStr := name[:len(name)-len(options.DataFileSuffix)]
		id, err := parseUint32(idStr)
		if err != nil {
			continue
		}
		if id < boundary {
			if err := os.Remove(filepath.Join(dirPath, name)); err != nil {
				return err
			}
		}
	}

	// Every staged file is promoted, including the merge-finished marker
	// and the hint file: recovery reads both directly out of the live
	// directory on the next open (see engine.loadIndexFromHintFile and
	// engine.loadIndexFromDataFiles), rather than consuming them here.
	staged, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range staged {
		name := entry.Name()
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(dirPath, name)); err != nil {
			return err
		}
	}

	return os.RemoveAll(dir)
}

func parseUint32(s string) (uint32, error) {
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + uint64(c-'0')
	}
	return uint32(n), nil
}
