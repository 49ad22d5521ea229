package record

import (
	"fmt"

	"github.com/sushant-115/heapstore/core/storage_engine/common"
)

// Scan is a single-pass forward iterator over the occupied slots of a
// record file, in ascending (page, slot) order. It pins each visited
// page only while inspecting its bitmap. The scan is not restartable and
// does not tolerate concurrent mutation of the file.
type Scan struct {
	h   *FileHandle
	rid Rid
}

// NewScan positions a new scan on the file's first occupied slot, or at
// end for an empty file.
func NewScan(h *FileHandle) (*Scan, error) {
	s := &Scan{
		h:   h,
		rid: Rid{PageNo: FirstRecordPage, SlotNo: -1},
	}
	if err := s.Next(); err != nil {
		return nil, err
	}
	return s, nil
}

// Next advances to the next occupied slot strictly after the current
// position, crossing page boundaries as needed. Past the last record the
// scan reaches end state.
func (s *Scan) Next() error {
	if s.IsEnd() {
		return fmt.Errorf("%w: %s", common.ErrScanExhausted, s.h.path)
	}
	s.h.mu.Lock()
	defer s.h.mu.Unlock()

	numPages := int(s.h.hdr.NumPages)
	slotsPerPage := int(s.h.hdr.NumRecordsPerPage)
	for s.rid.PageNo < numPages {
		ph, err := s.h.fetchPageHandle(s.rid.PageNo)
		if err != nil {
			return err
		}
		slot := bitmapNextSet(ph.Bitmap(), slotsPerPage, s.rid.SlotNo)
		s.h.unpin(ph, false)
		if slot < slotsPerPage {
			s.rid.SlotNo = slot
			return nil
		}
		s.rid = Rid{PageNo: s.rid.PageNo + 1, SlotNo: -1}
	}
	s.rid = Rid{PageNo: NoPage, SlotNo: -1}
	return nil
}

// IsEnd reports whether the scan has run past the last record.
func (s *Scan) IsEnd() bool {
	return s.rid.PageNo == NoPage
}

// Rid returns the scan's current record id. Only meaningful while
// IsEnd() is false.
func (s *Scan) Rid() Rid {
	return s.rid
}
