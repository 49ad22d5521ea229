// Package record implements the slotted-page heap file layered on the
// buffer pool: fixed-width records addressed by stable record ids, with
// free space tracked through an intrusive on-page free-page list.
package record

import "fmt"

const (
	// NoPage terminates the free-page list and marks a scan past EOF.
	NoPage = -1
	// FirstRecordPage is the first page holding records; page 0 is the
	// file header.
	FirstRecordPage = 1
)

// Rid identifies a record by its page and slot. It is stable for the
// record's lifetime; a delete followed by an insert may reuse it.
type Rid struct {
	PageNo int
	SlotNo int
}

func (r Rid) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNo, r.SlotNo)
}

// Record is a copy of one record's bytes, detached from any page.
type Record struct {
	Data []byte
}

// Size returns the record length in bytes.
func (r *Record) Size() int { return len(r.Data) }
