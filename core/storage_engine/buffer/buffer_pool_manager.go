package buffer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sushant-115/heapstore/core/storage_engine/common"
	"github.com/sushant-115/heapstore/core/storage_engine/disk"
)

// BufferPoolManager maps disk pages onto a fixed pool of frames. Pages are
// pinned while in use, written back when evicted dirty, and replaced
// according to the configured Replacer. A single latch serializes every
// state transition; callers receive pinned frames and manipulate their
// bytes outside the latch.
type BufferPoolManager struct {
	mu        sync.Mutex
	poolSize  int
	disk      *disk.Manager
	replacer  Replacer
	pages     []*Page
	pageTable map[PageID]FrameID
	freeList  []FrameID
	log       *zap.Logger
	metrics   *Metrics
}

// NewBufferPoolManager creates a pool of poolSize frames over the disk
// manager. metrics may be nil.
func NewBufferPoolManager(poolSize int, dm *disk.Manager, replacer Replacer, log *zap.Logger, metrics *Metrics) *BufferPoolManager {
	if log == nil {
		log = zap.NewNop()
	}
	b := &BufferPoolManager{
		poolSize:  poolSize,
		disk:      dm,
		replacer:  replacer,
		pages:     make([]*Page, poolSize),
		pageTable: make(map[PageID]FrameID, poolSize),
		freeList:  make([]FrameID, 0, poolSize),
		log:       log,
		metrics:   metrics,
	}
	for i := 0; i < poolSize; i++ {
		b.pages[i] = NewPage(dm.PageSize())
		b.freeList = append(b.freeList, FrameID(i))
	}
	b.log.Info("buffer pool initialized",
		zap.Int("pool_size", poolSize),
		zap.Int("page_size", dm.PageSize()))
	return b
}

// PoolSize returns the number of frames in the pool.
func (b *BufferPoolManager) PoolSize() int { return b.poolSize }

// PageSize returns the size in bytes of each frame.
func (b *BufferPoolManager) PageSize() int { return b.disk.PageSize() }

// findVictimFrame pops a frame from the free list, falling back to the
// replacer. Must be called with the latch held.
func (b *BufferPoolManager) findVictimFrame() (FrameID, bool) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, true
	}
	return b.replacer.Victim()
}

// evictFrame writes the frame's page back if dirty and drops its page
// table entry. Must be called with the latch held.
func (b *BufferPoolManager) evictFrame(frameID FrameID) error {
	victim := b.pages[frameID]
	if !victim.GetPageID().Valid() {
		return nil
	}
	if victim.IsDirty() {
		id := victim.GetPageID()
		if err := b.disk.WritePage(id.Fd, id.PageNo, victim.GetData()); err != nil {
			return fmt.Errorf("writing back dirty victim page (%d,%d): %w", id.Fd, id.PageNo, err)
		}
		victim.setDirty(false)
		b.metrics.writeback()
	}
	delete(b.pageTable, victim.GetPageID())
	b.metrics.eviction()
	return nil
}

// FetchPage returns the frame holding pageID, pinning it. On a miss the
// page is read from disk into a victim frame; the fetch fails with
// ErrBufferPoolFull when every frame is pinned.
func (b *BufferPoolManager) FetchPage(pageID PageID) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		page := b.pages[frameID]
		page.pin()
		b.replacer.Pin(frameID)
		b.metrics.hit()
		return page, nil
	}
	b.metrics.miss()

	frameID, ok := b.findVictimFrame()
	if !ok {
		b.log.Warn("fetch failed, all frames pinned",
			zap.Int("fd", pageID.Fd), zap.Int("page_no", pageID.PageNo))
		return nil, fmt.Errorf("%w: fetching page (%d,%d)", common.ErrBufferPoolFull, pageID.Fd, pageID.PageNo)
	}
	if err := b.evictFrame(frameID); err != nil {
		// Write-back failed: the victim mapping is untouched, put the
		// frame back where it came from.
		b.restoreFrame(frameID)
		return nil, err
	}

	page := b.pages[frameID]
	page.Reset()
	if err := b.disk.ReadPage(pageID.Fd, pageID.PageNo, page.GetData()); err != nil {
		page.Reset()
		b.freeList = append(b.freeList, frameID)
		return nil, fmt.Errorf("reading page (%d,%d) into frame %d: %w", pageID.Fd, pageID.PageNo, frameID, err)
	}

	page.setPageID(pageID)
	page.pin()
	page.setDirty(false)
	b.pageTable[pageID] = frameID
	b.replacer.Pin(frameID)
	return page, nil
}

// restoreFrame returns a frame obtained from findVictimFrame to its
// origin after a failed transition. Must be called with the latch held.
func (b *BufferPoolManager) restoreFrame(frameID FrameID) {
	if b.pages[frameID].GetPageID().Valid() {
		b.replacer.Unpin(frameID)
	} else {
		b.freeList = append(b.freeList, frameID)
	}
}

// UnpinPage drops one pin on a resident page, ORing isDirty into its
// dirty flag. Unpinning a page that is not resident is a no-op; unpinning
// a resident page whose pin count is already zero is an error.
func (b *BufferPoolManager) UnpinPage(pageID PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return nil
	}
	page := b.pages[frameID]
	if page.GetPinCount() == 0 {
		b.log.Warn("unpin of unpinned page",
			zap.Int("fd", pageID.Fd), zap.Int("page_no", pageID.PageNo))
		return fmt.Errorf("%w: page (%d,%d)", common.ErrPageNotPinned, pageID.Fd, pageID.PageNo)
	}
	if isDirty {
		page.setDirty(true)
	}
	page.unpin()
	if page.GetPinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return nil
}

// FlushPage writes a resident page to disk and clears its dirty flag.
// The pin count is unaffected.
func (b *BufferPoolManager) FlushPage(pageID PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: flushing page (%d,%d)", common.ErrPageNotFound, pageID.Fd, pageID.PageNo)
	}
	page := b.pages[frameID]
	if err := b.disk.WritePage(pageID.Fd, pageID.PageNo, page.GetData()); err != nil {
		return fmt.Errorf("flushing page (%d,%d): %w", pageID.Fd, pageID.PageNo, err)
	}
	page.setDirty(false)
	b.metrics.flush()
	return nil
}

// NewPage allocates a fresh page in file fd, installs it zeroed in a
// victim frame with pin count 1, and returns the pinned frame and its id.
func (b *BufferPoolManager) NewPage(fd int) (*Page, PageID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pageNo, err := b.disk.AllocatePage(fd)
	if err != nil || pageNo == disk.InvalidPageNo {
		return nil, InvalidPageID, fmt.Errorf("%w: %v", common.ErrDiskAllocFailed, err)
	}
	pageID := PageID{Fd: fd, PageNo: pageNo}

	frameID, ok := b.findVictimFrame()
	if !ok {
		// Hand the just-allocated disk page back so the file's page
		// numbering stays dense.
		_ = b.disk.DeallocatePage(fd, pageNo)
		b.log.Warn("new page failed, all frames pinned", zap.Int("fd", fd))
		return nil, InvalidPageID, fmt.Errorf("%w: allocating page (%d,%d)", common.ErrBufferPoolFull, fd, pageNo)
	}
	if err := b.evictFrame(frameID); err != nil {
		b.restoreFrame(frameID)
		_ = b.disk.DeallocatePage(fd, pageNo)
		return nil, InvalidPageID, err
	}

	page := b.pages[frameID]
	page.Reset()
	page.setPageID(pageID)
	page.pin()
	page.setDirty(false)
	b.pageTable[pageID] = frameID
	b.replacer.Pin(frameID)
	b.log.Debug("allocated new page",
		zap.Int("fd", fd), zap.Int("page_no", pageNo), zap.Int("frame", int(frameID)))
	return page, pageID, nil
}

// DeletePage removes a page from the pool and deallocates it on disk.
// Deleting a non-resident page succeeds; deleting a pinned page fails.
func (b *BufferPoolManager) DeletePage(pageID PageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return nil
	}
	page := b.pages[frameID]
	if page.GetPinCount() > 0 {
		return fmt.Errorf("%w: deleting page (%d,%d)", common.ErrPagePinned, pageID.Fd, pageID.PageNo)
	}
	b.replacer.Pin(frameID)
	delete(b.pageTable, pageID)
	page.Reset()
	b.freeList = append(b.freeList, frameID)
	_ = b.disk.DeallocatePage(pageID.Fd, pageID.PageNo)
	return nil
}

// FlushAllPages writes every resident page of file fd to disk, clears
// their dirty flags, and syncs the file. The first error is returned
// after attempting every page.
func (b *BufferPoolManager) FlushAllPages(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for _, page := range b.pages {
		id := page.GetPageID()
		if id.Fd != fd || !id.Valid() {
			continue
		}
		if err := b.disk.WritePage(id.Fd, id.PageNo, page.GetData()); err != nil {
			b.log.Error("flush all: page write failed",
				zap.Int("fd", id.Fd), zap.Int("page_no", id.PageNo), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		page.setDirty(false)
		b.metrics.flush()
	}
	if err := b.disk.Sync(fd); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
