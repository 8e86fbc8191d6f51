package options

const (
	// DefaultDataFileSize is the default target size for a segment
	// file, in bytes (256 MiB).
	DefaultDataFileSize int64 = 256 * 1024 * 1024

	// DefaultFileMergeThreshold is the default reclaimable-ratio
	// threshold required before Merge proceeds.
	DefaultFileMergeThreshold float64 = 0.6

	// DefaultMaxBatchNum is the default cap on pending writes per
	// write-batch.
	DefaultMaxBatchNum uint = 1000

	// SeqNoFileName is the fixed name of the file the engine persists
	// its last allocated sequence number to on a clean close.
	SeqNoFileName = "seq-no"

	// HintFileName is the fixed name of the hint file merge writes,
	// listing the final position of every live key.
	HintFileName = "hint-index"

	// MergeFinishedFileName is the fixed name of the marker file merge
	// writes once a staging directory is ready for promotion.
	MergeFinishedFileName = "merge-finished"

	// LockFileName is the fixed name of the advisory lock file held
	// for the lifetime of an open engine.
	LockFileName = "flock"

	// DataFileSuffix is the file extension every segment file carries.
	DataFileSuffix = ".data"

	// MergeDirSuffix is appended to an engine's base directory name to
	// derive its merge staging directory.
	MergeDirSuffix = "-merge"
)
