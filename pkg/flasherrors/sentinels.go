package flasherrors

// Sentinel errors for the conditions named in the engine's error
// taxonomy. Callers match against these with errors.Is. The sentinels
// are returned as they are; the richer StorageError/IndexError/
// ValidationError values built elsewhere in this module wrap the
// underlying cause (typically an OS error) rather than a sentinel.
var (
	ErrKeyIsEmpty            = NewBaseError(nil, ErrorCodeKeyIsEmpty, "the key is empty")
	ErrKeyNotFound           = NewBaseError(nil, ErrorCodeKeyNotFound, "key not found in database")
	ErrDataFileNotFound      = NewBaseError(nil, ErrorCodeDataFileNotFound, "data file is not found")
	ErrFailedToCreateDir     = NewBaseError(nil, ErrorCodeFailedToCreateDir, "failed to create database directory")
	ErrFailedToReadDir       = NewBaseError(nil, ErrorCodeFailedToReadDir, "failed to read database directory")
	ErrDatabaseDirCorrupted  = NewBaseError(nil, ErrorCodeDatabaseDirCorrupted, "the database directory maybe corrupted")
	ErrFailedToOpenDataFile  = NewBaseError(nil, ErrorCodeFailedToOpenDataFile, "failed to open data file")
	ErrFailedToReadDataFile  = NewBaseError(nil, ErrorCodeFailedToReadDataFile, "failed to read from data file")
	ErrFailedToWriteDataFile = NewBaseError(nil, ErrorCodeFailedToWriteDataFile, "failed to write to data file")
	ErrFailedToSyncDataFile  = NewBaseError(nil, ErrorCodeFailedToSyncDataFile, "failed to sync data file")
	ErrReadDataFileEOF       = NewBaseError(nil, ErrorCodeReadDataFileEOF, "reached the end of the data file")
	ErrInvalidLogRecordCrc   = NewBaseError(nil, ErrorCodeInvalidLogRecordCrc, "invalid crc value, log record maybe corrupted")
	ErrDatabaseIsUsing       = NewBaseError(nil, ErrorCodeDatabaseIsUsing, "the database directory is used by another process")
	ErrUnableToUseWriteBatch = NewBaseError(nil, ErrorCodeUnableToUseWriteBatch, "unable to use write batch, seq no file does not exist")
	ErrExceedMaxBatchNum     = NewBaseError(nil, ErrorCodeExceedMaxBatchNum, "exceed the max batch num")
	ErrMergeInProgress       = NewBaseError(nil, ErrorCodeMergeInProgress, "merge is in progress, try again later")
	ErrMergeThresholdUnreach = NewBaseError(nil, ErrorCodeMergeThresholdUnreached, "the reclaimable size does not reach the merge threshold")
	ErrMergeNoEnoughSpace    = NewBaseError(nil, ErrorCodeMergeNoEnoughSpace, "no enough disk space for merge")
	ErrFailedToCopyDirectory = NewBaseError(nil, ErrorCodeFailedToCopyDirectory, "failed to copy data directory")
	ErrInvalidOperation      = NewBaseError(nil, ErrorCodeInvalidOperation, "operation not supported by this backend")
)
