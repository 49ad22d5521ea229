package record

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/heapstore/core/storage_engine/common"
)

// FileHeader is the page-0 metadata of a record file. RecordSize,
// NumRecordsPerPage and BitmapSize are fixed at file creation; NumPages
// and FirstFreePageNo evolve with the file.
type FileHeader struct {
	RecordSize        int32
	NumPages          int32
	NumRecordsPerPage int32
	BitmapSize        int32
	FirstFreePageNo   int32
}

// fileHeaderSize is the encoded size of FileHeader at the front of page 0.
const fileHeaderSize = 5 * 4

// Record page layout: page header, bitmap, slot array.
const (
	offNextFreePageNo = 0
	offNumRecords     = 4
	pageHeaderSize    = 8
)

// pageGeometry computes the slot count and bitmap size for a record
// width: the largest n with pageHeaderSize + ceil(n/8) + n*recordSize
// <= pageSize.
func pageGeometry(pageSize, recordSize int) (numRecordsPerPage, bitmapSize int, err error) {
	if recordSize <= 0 {
		return 0, 0, fmt.Errorf("%w: record size %d", common.ErrInvalidRecordSize, recordSize)
	}
	avail := pageSize - pageHeaderSize
	n := avail * 8 / (1 + 8*recordSize)
	for n > 0 && pageHeaderSize+(n+7)/8+n*recordSize > pageSize {
		n--
	}
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: record size %d does not fit a %d byte page", common.ErrInvalidRecordSize, recordSize, pageSize)
	}
	return n, (n + 7) / 8, nil
}

// encodeFileHeader writes the header into the front of a page-0 buffer.
func encodeFileHeader(hdr *FileHeader, page []byte) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("serializing file header: %w", err)
	}
	copy(page, buf.Bytes())
	return nil
}

// decodeFileHeader reads the header from a page-0 buffer.
func decodeFileHeader(page []byte) (FileHeader, error) {
	var hdr FileHeader
	if err := binary.Read(bytes.NewReader(page[:fileHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return FileHeader{}, fmt.Errorf("deserializing file header: %w", err)
	}
	if hdr.RecordSize <= 0 || hdr.NumPages < 1 || hdr.NumRecordsPerPage <= 0 {
		return FileHeader{}, fmt.Errorf("invalid record file header: record_size=%d num_pages=%d records_per_page=%d",
			hdr.RecordSize, hdr.NumPages, hdr.NumRecordsPerPage)
	}
	return hdr, nil
}

func getInt32(data []byte, off int) int {
	return int(int32(binary.LittleEndian.Uint32(data[off : off+4])))
}

func putInt32(data []byte, off, v int) {
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(v)))
}
