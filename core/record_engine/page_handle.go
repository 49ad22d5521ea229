package record

import "github.com/sushant-115/heapstore/core/storage_engine/buffer"

// PageHandle is a transient view over a pinned buffer frame interpreted
// as a record page. It does not own the pin; the file handle that
// fetched the page unpins it when the operation finishes.
type PageHandle struct {
	fileHdr *FileHeader
	page    *buffer.Page
}

func newPageHandle(fileHdr *FileHeader, page *buffer.Page) PageHandle {
	return PageHandle{fileHdr: fileHdr, page: page}
}

// PageID returns the buffer-pool identity of the underlying page.
func (ph PageHandle) PageID() buffer.PageID { return ph.page.GetPageID() }

// PageNo returns the page number within the record file.
func (ph PageHandle) PageNo() int { return ph.page.GetPageID().PageNo }

// NumRecords returns the occupied slot count from the page header.
func (ph PageHandle) NumRecords() int {
	return getInt32(ph.page.GetData(), offNumRecords)
}

// SetNumRecords stores the occupied slot count into the page header.
func (ph PageHandle) SetNumRecords(n int) {
	putInt32(ph.page.GetData(), offNumRecords, n)
}

// NextFreePageNo returns this page's link in the free-page list.
func (ph PageHandle) NextFreePageNo() int {
	return getInt32(ph.page.GetData(), offNextFreePageNo)
}

// SetNextFreePageNo stores this page's link in the free-page list.
func (ph PageHandle) SetNextFreePageNo(pageNo int) {
	putInt32(ph.page.GetData(), offNextFreePageNo, pageNo)
}

// Bitmap returns the slot bitmap bytes of the page.
func (ph PageHandle) Bitmap() []byte {
	return ph.page.GetData()[pageHeaderSize : pageHeaderSize+int(ph.fileHdr.BitmapSize)]
}

// Slot returns the byte range of slot slotNo.
func (ph PageHandle) Slot(slotNo int) []byte {
	off := pageHeaderSize + int(ph.fileHdr.BitmapSize) + slotNo*int(ph.fileHdr.RecordSize)
	return ph.page.GetData()[off : off+int(ph.fileHdr.RecordSize)]
}
