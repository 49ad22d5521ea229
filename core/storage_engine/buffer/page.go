// Package buffer implements the buffer pool: a fixed array of in-memory
// frames multiplexed across on-disk pages, with pin counts, dirty
// write-back and a pluggable replacement policy.
package buffer

import "github.com/sushant-115/heapstore/core/storage_engine/disk"

// FrameID indexes a frame in the buffer pool's frame array.
type FrameID int

// PageID identifies a disk page: which open file, and which page in it.
type PageID struct {
	Fd     int
	PageNo int
}

// InvalidPageID marks a frame that holds no page.
var InvalidPageID = PageID{Fd: -1, PageNo: disk.InvalidPageNo}

// Valid reports whether the id refers to an actual page.
func (id PageID) Valid() bool { return id.PageNo != disk.InvalidPageNo }

// Page is one frame of the buffer pool: a disk page's bytes plus the
// metadata the pool needs to manage it. Frame metadata is only touched
// under the pool latch; the data bytes are handed to callers while pinned.
type Page struct {
	id       PageID
	data     []byte
	pinCount int
	isDirty  bool
}

// NewPage creates an empty frame of the given page size.
func NewPage(size int) *Page {
	return &Page{
		id:   InvalidPageID,
		data: make([]byte, size),
	}
}

// Reset clears the frame's identity, metadata and bytes.
func (p *Page) Reset() {
	p.id = InvalidPageID
	p.pinCount = 0
	p.isDirty = false
	for i := range p.data {
		p.data[i] = 0
	}
}

// GetData returns the frame's page bytes. The slice is only valid while
// the page is pinned.
func (p *Page) GetData() []byte { return p.data }

// GetPageID returns the id of the page currently resident in this frame.
func (p *Page) GetPageID() PageID { return p.id }

// GetPinCount returns the frame's current pin count.
func (p *Page) GetPinCount() int { return p.pinCount }

// IsDirty reports whether the page was modified since its last disk write.
func (p *Page) IsDirty() bool { return p.isDirty }

func (p *Page) setPageID(id PageID) { p.id = id }
func (p *Page) setDirty(d bool)     { p.isDirty = d }
func (p *Page) pin()                { p.pinCount++ }
func (p *Page) unpin() {
	if p.pinCount > 0 {
		p.pinCount--
	}
}
