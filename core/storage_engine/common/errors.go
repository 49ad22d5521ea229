package common

import "errors"

// --- Error Definitions ---

var (
	ErrPageNotFound      = errors.New("page not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrRecordExists      = errors.New("record already exists at slot")
	ErrBufferPoolFull    = errors.New("buffer pool is full and no frames can be evicted")
	ErrDiskAllocFailed   = errors.New("disk manager failed to allocate a page")
	ErrPagePinned        = errors.New("page is pinned and cannot be removed")
	ErrPageNotPinned     = errors.New("page pin count is already zero")
	ErrInvalidRecordSize = errors.New("record payload size does not match the file record size")
	ErrIO                = errors.New("i/o error")
	ErrDBFileExists      = errors.New("database file already exists")
	ErrDBFileNotFound    = errors.New("database file not found")
	ErrFileNotOpen       = errors.New("file is not open")
	ErrFileAlreadyOpen   = errors.New("file is already open")
	ErrFileInUse         = errors.New("file is open and cannot be destroyed")
	ErrScanExhausted     = errors.New("scan is already at end of file")
)
