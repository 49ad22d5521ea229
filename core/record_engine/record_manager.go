package record

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sushant-115/heapstore/core/storage_engine/buffer"
	"github.com/sushant-115/heapstore/core/storage_engine/disk"
)

// Manager creates, opens and destroys record files. All handles it
// returns share one disk manager and one buffer pool.
type Manager struct {
	disk *disk.Manager
	bpm  *buffer.BufferPoolManager
	log  *zap.Logger
}

// NewManager creates a record file manager over the given disk manager
// and buffer pool.
func NewManager(dm *disk.Manager, bpm *buffer.BufferPoolManager, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{disk: dm, bpm: bpm, log: log}
}

// CreateFile creates a record file for fixed-width records of recordSize
// bytes and writes its initial header. The file starts with the header
// page only and an empty free list.
func (m *Manager) CreateFile(path string, recordSize int) error {
	numRecordsPerPage, bitmapSize, err := pageGeometry(m.disk.PageSize(), recordSize)
	if err != nil {
		return err
	}
	if err := m.disk.CreateFile(path); err != nil {
		return err
	}
	fd, err := m.disk.OpenFile(path)
	if err != nil {
		return err
	}
	hdr := FileHeader{
		RecordSize:        int32(recordSize),
		NumPages:          1,
		NumRecordsPerPage: int32(numRecordsPerPage),
		BitmapSize:        int32(bitmapSize),
		FirstFreePageNo:   NoPage,
	}
	buf := make([]byte, m.disk.PageSize())
	if err := encodeFileHeader(&hdr, buf); err != nil {
		_ = m.disk.CloseFile(fd)
		return err
	}
	if err := m.disk.WritePage(fd, 0, buf); err != nil {
		_ = m.disk.CloseFile(fd)
		return err
	}
	if err := m.disk.CloseFile(fd); err != nil {
		return err
	}
	m.log.Info("created record file",
		zap.String("path", path),
		zap.Int("record_size", recordSize),
		zap.Int("records_per_page", numRecordsPerPage))
	return nil
}

// OpenFile opens a record file and returns a handle with the header
// cached.
func (m *Manager) OpenFile(path string) (*FileHandle, error) {
	fd, err := m.disk.OpenFile(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, m.disk.PageSize())
	if err := m.disk.ReadPage(fd, 0, buf); err != nil {
		_ = m.disk.CloseFile(fd)
		return nil, err
	}
	hdr, err := decodeFileHeader(buf)
	if err != nil {
		_ = m.disk.CloseFile(fd)
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &FileHandle{
		path: path,
		fd:   fd,
		disk: m.disk,
		bpm:  m.bpm,
		log:  m.log,
		hdr:  hdr,
	}, nil
}

// CloseFile writes the handle's header and buffered pages back to disk
// and closes the underlying file.
func (m *Manager) CloseFile(h *FileHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.flushLocked(); err != nil {
		return err
	}
	return m.disk.CloseFile(h.fd)
}

// DestroyFile removes a record file from disk. Fails while the file is
// open.
func (m *Manager) DestroyFile(path string) error {
	return m.disk.DestroyFile(path)
}
