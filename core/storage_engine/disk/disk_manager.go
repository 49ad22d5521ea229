// Package disk implements random-access page I/O over plain files. Every
// open file is addressed by a small integer handle (fd); page reads and
// writes are positioned with ReadAt/WriteAt so no seek state is shared.
package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/heapstore/core/storage_engine/common"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 4096

// InvalidPageNo marks "no such page" wherever a page number is expected.
const InvalidPageNo = -1

type openFile struct {
	path     string
	file     *os.File
	nextPage int // next page number AllocatePage hands out
}

// Manager owns the open-file table and performs all page-granular file I/O.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	pageSize int
	nextFd   int
	files    map[int]*openFile
	fds      map[string]int
	log      *zap.Logger
}

// NewManager creates a disk manager for files of the given page size.
func NewManager(pageSize int, log *zap.Logger) *Manager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		pageSize: pageSize,
		files:    make(map[int]*openFile),
		fds:      make(map[string]int),
		log:      log,
	}
}

// PageSize returns the fixed page size of files managed here.
func (m *Manager) PageSize() int { return m.pageSize }

// CreateFile creates a new empty file. Fails if the file already exists.
func (m *Manager) CreateFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", common.ErrDBFileExists, path)
		}
		return fmt.Errorf("%w: creating file %s: %v", common.ErrIO, path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing new file %s: %v", common.ErrIO, path, err)
	}
	m.log.Debug("created file", zap.String("path", path))
	return nil
}

// DestroyFile removes a file from disk. The file must not be open.
func (m *Manager) DestroyFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, open := m.fds[path]; open {
		return fmt.Errorf("%w: %s", common.ErrFileInUse, path)
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", common.ErrDBFileNotFound, path)
		}
		return fmt.Errorf("%w: removing file %s: %v", common.ErrIO, path, err)
	}
	return nil
}

// OpenFile opens an existing file and returns its handle. A file may be
// open at most once; the handle stays valid until CloseFile.
func (m *Manager) OpenFile(path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, open := m.fds[path]; open {
		return -1, fmt.Errorf("%w: %s", common.ErrFileAlreadyOpen, path)
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, fmt.Errorf("%w: %s", common.ErrDBFileNotFound, path)
		}
		return -1, fmt.Errorf("%w: opening file %s: %v", common.ErrIO, path, err)
	}
	fi, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return -1, fmt.Errorf("%w: stating file %s: %v", common.ErrIO, path, err)
	}

	fd := m.nextFd
	m.nextFd++
	m.files[fd] = &openFile{
		path:     path,
		file:     file,
		nextPage: int(fi.Size()) / m.pageSize,
	}
	m.fds[path] = fd
	m.log.Debug("opened file", zap.String("path", path), zap.Int("fd", fd), zap.Int("num_pages", int(fi.Size())/m.pageSize))
	return fd, nil
}

// CloseFile syncs and closes an open file handle.
func (m *Manager) CloseFile(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	delete(m.files, fd)
	delete(m.fds, of.path)
	if err := of.file.Sync(); err != nil {
		_ = of.file.Close()
		return fmt.Errorf("%w: syncing file %s on close: %v", common.ErrIO, of.path, err)
	}
	if err := of.file.Close(); err != nil {
		return fmt.Errorf("%w: closing file %s: %v", common.ErrIO, of.path, err)
	}
	return nil
}

// ReadPage reads page pageNo of file fd into buf. buf must be exactly one
// page long.
func (m *Manager) ReadPage(fd, pageNo int, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	if len(buf) != m.pageSize {
		return fmt.Errorf("page buffer size (%d) != disk manager page size (%d)", len(buf), m.pageSize)
	}
	offset := int64(pageNo) * int64(m.pageSize)
	n, err := of.file.ReadAt(buf, offset)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: EOF reading page %d of %s at offset %d", common.ErrIO, pageNo, of.path, offset)
		}
		return fmt.Errorf("%w: reading page %d of %s: %v", common.ErrIO, pageNo, of.path, err)
	}
	if n != m.pageSize {
		return fmt.Errorf("%w: short read for page %d of %s, expected %d, got %d", common.ErrIO, pageNo, of.path, m.pageSize, n)
	}
	return nil
}

// WritePage writes buf to page pageNo of file fd. The write is not synced;
// durability is the caller's responsibility (FlushPage / Sync).
func (m *Manager) WritePage(fd, pageNo int, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	if len(buf) != m.pageSize {
		return fmt.Errorf("page buffer size (%d) != disk manager page size (%d)", len(buf), m.pageSize)
	}
	offset := int64(pageNo) * int64(m.pageSize)
	if _, err := of.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %d of %s: %v", common.ErrIO, pageNo, of.path, err)
	}
	return nil
}

// AllocatePage extends file fd by one zeroed page and returns its page
// number. On failure it returns InvalidPageNo.
func (m *Manager) AllocatePage(fd int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return InvalidPageNo, fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	pageNo := of.nextPage
	empty := make([]byte, m.pageSize)
	offset := int64(pageNo) * int64(m.pageSize)
	if _, err := of.file.WriteAt(empty, offset); err != nil {
		return InvalidPageNo, fmt.Errorf("%w: extending %s for page %d: %v", common.ErrIO, of.path, pageNo, err)
	}
	of.nextPage++
	m.log.Debug("allocated page", zap.Int("fd", fd), zap.Int("page_no", pageNo))
	return pageNo, nil
}

// DeallocatePage releases a page number. Only the most recent allocation
// can be taken back (undo for a failed page install); anything older is a
// no-op, since reusable record pages live on the file's own free list and
// disk space is reclaimed only by DestroyFile.
func (m *Manager) DeallocatePage(fd, pageNo int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	if pageNo == of.nextPage-1 {
		of.nextPage--
	}
	return nil
}

// Sync flushes file fd's buffered writes to stable storage.
func (m *Manager) Sync(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	if err := of.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing file %s: %v", common.ErrIO, of.path, err)
	}
	return nil
}

// NumPages returns the current page count of file fd.
func (m *Manager) NumPages(fd int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	of, ok := m.files[fd]
	if !ok {
		return 0, fmt.Errorf("%w: fd %d", common.ErrFileNotOpen, fd)
	}
	return of.nextPage, nil
}
