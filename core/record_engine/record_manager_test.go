package record

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushant-115/heapstore/core/storage_engine/common"
)

// TestCreateFileWritesHeader: a new file has one page and an empty free
// list, with the geometry derived from the record size.
func TestCreateFileWritesHeader(t *testing.T) {
	env := newTestEnv(t, 4)
	path := filepath.Join(env.dir, "hdr.db")
	require.NoError(t, env.rm.CreateFile(path, testRecordSize))

	h, err := env.rm.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, env.rm.CloseFile(h)) }()

	require.Equal(t, testRecordSize, h.RecordSize())
	require.Equal(t, 1, h.NumPages())
	require.Equal(t, NoPage, h.FirstFreePageNo())
	require.Equal(t, int32(testSlots), h.hdr.NumRecordsPerPage)
	require.Equal(t, int32(1), h.hdr.BitmapSize)
}

// TestCreateFileRejectsBadRecordSize: zero, negative and page-filling
// record sizes are refused before any file is created.
func TestCreateFileRejectsBadRecordSize(t *testing.T) {
	env := newTestEnv(t, 4)
	path := filepath.Join(env.dir, "bad.db")

	require.ErrorIs(t, env.rm.CreateFile(path, 0), common.ErrInvalidRecordSize)
	require.ErrorIs(t, env.rm.CreateFile(path, -8), common.ErrInvalidRecordSize)
	require.ErrorIs(t, env.rm.CreateFile(path, testPageSize), common.ErrInvalidRecordSize)

	_, err := env.rm.OpenFile(path)
	require.ErrorIs(t, err, common.ErrDBFileNotFound)
}

// TestCreateFileTwiceFails: the second create must not clobber the file.
func TestCreateFileTwiceFails(t *testing.T) {
	env := newTestEnv(t, 4)
	path := filepath.Join(env.dir, "dup.db")
	require.NoError(t, env.rm.CreateFile(path, testRecordSize))
	require.ErrorIs(t, env.rm.CreateFile(path, testRecordSize), common.ErrDBFileExists)
}

// TestDestroyFile: destroying requires the file to be closed, and the
// file is gone afterwards.
func TestDestroyFile(t *testing.T) {
	env := newTestEnv(t, 4)
	path := filepath.Join(env.dir, "destroy.db")
	require.NoError(t, env.rm.CreateFile(path, testRecordSize))

	h, err := env.rm.OpenFile(path)
	require.NoError(t, err)
	require.ErrorIs(t, env.rm.DestroyFile(path), common.ErrFileInUse)

	require.NoError(t, env.rm.CloseFile(h))
	require.NoError(t, env.rm.DestroyFile(path))
	_, err = env.rm.OpenFile(path)
	require.ErrorIs(t, err, common.ErrDBFileNotFound)
}

// TestCloseFilePersistsHeader: free-list state survives close/reopen.
func TestCloseFilePersistsHeader(t *testing.T) {
	env := newTestEnv(t, 4)
	path := filepath.Join(env.dir, "persist.db")
	require.NoError(t, env.rm.CreateFile(path, testRecordSize))

	h, err := env.rm.OpenFile(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := h.InsertRecord(payload(byte('a' + i)))
		require.NoError(t, err)
	}
	// Page 1 is full, page 2 holds one record and heads the free list.
	require.Equal(t, 2, h.FirstFreePageNo())
	require.NoError(t, env.rm.CloseFile(h))

	h2, err := env.rm.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, env.rm.CloseFile(h2)) }()
	require.Equal(t, 3, h2.NumPages())
	require.Equal(t, 2, h2.FirstFreePageNo())

	// Inserting after reopen continues on the free page.
	rid, err := h2.InsertRecord(payload('e'))
	require.NoError(t, err)
	require.Equal(t, Rid{PageNo: 2, SlotNo: 1}, rid)
}
