package record

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/heapstore/core/storage_engine/buffer"
	"github.com/sushant-115/heapstore/core/storage_engine/common"
	"github.com/sushant-115/heapstore/core/storage_engine/disk"
)

// FileHandle performs record CRUD on one open record file. It caches the
// file header; the cached copy is authoritative while the file is open
// and is written back by Flush and on close.
//
// A mutex serializes operations on the handle so that the paired
// file-header / page-header updates of the free-page list are atomic.
// Byte-level coordination of concurrent writers to the same record is
// the caller's responsibility.
type FileHandle struct {
	path string
	fd   int
	disk *disk.Manager
	bpm  *buffer.BufferPoolManager
	log  *zap.Logger

	mu  sync.Mutex
	hdr FileHeader
}

// Path returns the file path this handle was opened from.
func (h *FileHandle) Path() string { return h.path }

// Fd returns the disk manager handle of the open file.
func (h *FileHandle) Fd() int { return h.fd }

// RecordSize returns the fixed record width of the file.
func (h *FileHandle) RecordSize() int {
	return int(h.hdr.RecordSize)
}

// NumPages returns the file's page count including the header page.
func (h *FileHandle) NumPages() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(h.hdr.NumPages)
}

// FirstFreePageNo returns the head of the free-page list, or NoPage.
func (h *FileHandle) FirstFreePageNo() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return int(h.hdr.FirstFreePageNo)
}

// GetRecord copies the record at rid out of its page.
func (h *FileHandle) GetRecord(rid Rid) (*Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, err := h.fetchPageHandle(rid.PageNo)
	if err != nil {
		return nil, err
	}
	if !h.slotInRange(rid.SlotNo) || !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		h.unpin(ph, false)
		return nil, fmt.Errorf("%w: %s", common.ErrRecordNotFound, rid)
	}
	rec := &Record{Data: make([]byte, h.hdr.RecordSize)}
	copy(rec.Data, ph.Slot(rid.SlotNo))
	h.unpin(ph, false)
	return rec, nil
}

// InsertRecord stores buf in the first free slot of a page with space,
// creating a page if the free list is empty, and returns the record id.
func (h *FileHandle) InsertRecord(buf []byte) (Rid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(buf) != int(h.hdr.RecordSize) {
		return Rid{}, fmt.Errorf("%w: got %d, want %d", common.ErrInvalidRecordSize, len(buf), h.hdr.RecordSize)
	}
	ph, err := h.acquireFreePage()
	if err != nil {
		return Rid{}, err
	}
	slot := bitmapFirstClear(ph.Bitmap(), int(h.hdr.NumRecordsPerPage))
	if slot < 0 {
		h.unpin(ph, false)
		return Rid{}, fmt.Errorf("free-listed page %d has no free slot", ph.PageNo())
	}
	copy(ph.Slot(slot), buf)
	bitmapSet(ph.Bitmap(), slot)
	n := ph.NumRecords() + 1
	ph.SetNumRecords(n)
	if n == int(h.hdr.NumRecordsPerPage) {
		// The page filled up; unlink it from the free list head.
		h.hdr.FirstFreePageNo = int32(ph.NextFreePageNo())
	}
	h.unpin(ph, true)
	return Rid{PageNo: ph.PageNo(), SlotNo: slot}, nil
}

// InsertRecordAt stores buf at a caller-chosen rid, extending the file
// with fresh pages until the target page exists. The slot must be free.
func (h *FileHandle) InsertRecordAt(rid Rid, buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(buf) != int(h.hdr.RecordSize) {
		return fmt.Errorf("%w: got %d, want %d", common.ErrInvalidRecordSize, len(buf), h.hdr.RecordSize)
	}
	if rid.PageNo < FirstRecordPage || !h.slotInRange(rid.SlotNo) {
		return fmt.Errorf("%w: %s", common.ErrRecordNotFound, rid)
	}
	for rid.PageNo >= int(h.hdr.NumPages) {
		ph, err := h.createNewPageHandle()
		if err != nil {
			return err
		}
		h.unpin(ph, true)
	}

	ph, err := h.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	if bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		h.unpin(ph, false)
		return fmt.Errorf("%w: %s", common.ErrRecordExists, rid)
	}
	copy(ph.Slot(rid.SlotNo), buf)
	bitmapSet(ph.Bitmap(), rid.SlotNo)
	n := ph.NumRecords() + 1
	ph.SetNumRecords(n)
	if n == int(h.hdr.NumRecordsPerPage) {
		h.hdr.FirstFreePageNo = int32(ph.NextFreePageNo())
	}
	h.unpin(ph, true)
	return nil
}

// DeleteRecord clears the record at rid. A full page that loses a record
// is pushed back onto the head of the free list.
func (h *FileHandle) DeleteRecord(rid Rid) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, err := h.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	if !h.slotInRange(rid.SlotNo) || !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		h.unpin(ph, false)
		return fmt.Errorf("%w: %s", common.ErrRecordNotFound, rid)
	}
	wasFull := ph.NumRecords() == int(h.hdr.NumRecordsPerPage)
	bitmapClear(ph.Bitmap(), rid.SlotNo)
	ph.SetNumRecords(ph.NumRecords() - 1)
	if wasFull {
		// Full -> not-full: push the page onto the free list head.
		ph.SetNextFreePageNo(int(h.hdr.FirstFreePageNo))
		h.hdr.FirstFreePageNo = int32(rid.PageNo)
	}
	h.unpin(ph, true)
	return nil
}

// UpdateRecord overwrites the record at rid in place.
func (h *FileHandle) UpdateRecord(rid Rid, buf []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(buf) != int(h.hdr.RecordSize) {
		return fmt.Errorf("%w: got %d, want %d", common.ErrInvalidRecordSize, len(buf), h.hdr.RecordSize)
	}
	ph, err := h.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	if !h.slotInRange(rid.SlotNo) || !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		h.unpin(ph, false)
		return fmt.Errorf("%w: %s", common.ErrRecordNotFound, rid)
	}
	copy(ph.Slot(rid.SlotNo), buf)
	h.unpin(ph, true)
	return nil
}

// Flush writes the cached file header to page 0 and all of the file's
// buffered pages to disk.
func (h *FileHandle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushLocked()
}

func (h *FileHandle) flushLocked() error {
	if err := h.writeHeader(); err != nil {
		return err
	}
	return h.bpm.FlushAllPages(h.fd)
}

// fetchPageHandle pins pageNo and wraps it in a record page view.
// Callers must unpin through unpin. Must be called with mu held.
func (h *FileHandle) fetchPageHandle(pageNo int) (PageHandle, error) {
	if pageNo < FirstRecordPage || pageNo >= int(h.hdr.NumPages) {
		return PageHandle{}, fmt.Errorf("%w: page %d of %s", common.ErrPageNotFound, pageNo, h.path)
	}
	page, err := h.bpm.FetchPage(buffer.PageID{Fd: h.fd, PageNo: pageNo})
	if err != nil {
		return PageHandle{}, err
	}
	return newPageHandle(&h.hdr, page), nil
}

// createNewPageHandle allocates a fresh record page, initializes its
// header and links it at the head of the free list. The page comes back
// pinned. Must be called with mu held.
func (h *FileHandle) createNewPageHandle() (PageHandle, error) {
	page, pageID, err := h.bpm.NewPage(h.fd)
	if err != nil {
		return PageHandle{}, err
	}
	ph := newPageHandle(&h.hdr, page)
	ph.SetNumRecords(0)
	ph.SetNextFreePageNo(int(h.hdr.FirstFreePageNo))
	h.hdr.FirstFreePageNo = int32(pageID.PageNo)
	h.hdr.NumPages++
	h.log.Debug("created record page",
		zap.String("path", h.path), zap.Int("page_no", pageID.PageNo))
	return ph, nil
}

// acquireFreePage returns a pinned page with at least one free slot,
// creating one when the free list is empty. Must be called with mu held.
func (h *FileHandle) acquireFreePage() (PageHandle, error) {
	if h.hdr.FirstFreePageNo == NoPage {
		return h.createNewPageHandle()
	}
	return h.fetchPageHandle(int(h.hdr.FirstFreePageNo))
}

func (h *FileHandle) unpin(ph PageHandle, dirty bool) {
	if err := h.bpm.UnpinPage(ph.PageID(), dirty); err != nil {
		h.log.Error("unpin failed",
			zap.String("path", h.path), zap.Int("page_no", ph.PageNo()), zap.Error(err))
	}
}

func (h *FileHandle) slotInRange(slotNo int) bool {
	return slotNo >= 0 && slotNo < int(h.hdr.NumRecordsPerPage)
}

// writeHeader encodes the cached header straight to page 0 through the
// disk manager; the header page never passes through the buffer pool.
func (h *FileHandle) writeHeader() error {
	buf := make([]byte, h.disk.PageSize())
	if err := encodeFileHeader(&h.hdr, buf); err != nil {
		return err
	}
	return h.disk.WritePage(h.fd, 0, buf)
}
