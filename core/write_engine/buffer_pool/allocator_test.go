package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

func allocate(t *testing.T, bp *BufferPool, tableID pagemanager.TableID) pagemanager.PageNum {
	t.Helper()
	s, err := bp.AllocatePage(tableID)
	require.NoError(t, err)
	require.True(t, s.IsPinned())
	bp.Unpin(s)
	return s.PageNum()
}

func headerOf(t *testing.T, bp *BufferPool, tableID pagemanager.TableID) (numPages uint64, free pagemanager.PageNum) {
	t.Helper()
	header, err := bp.GetBuffer(tableID, pagemanager.HeaderPageNum)
	require.NoError(t, err)
	defer bp.Unpin(header)
	return header.Page().NumPages(), header.Page().FreePageNum()
}

func TestAllocator_AllocateFreeReallocate(t *testing.T) {
	bp, _, tableID := newTestPool(t, 4)
	defer bp.Close()

	assert.Equal(t, pagemanager.PageNum(1), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(2), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(3), allocate(t, bp, tableID))

	s, err := bp.GetBuffer(tableID, 2)
	require.NoError(t, err)
	require.NoError(t, bp.FreePage(tableID, s))
	assert.True(t, s.IsPinned(), "the caller keeps its pin")
	bp.Unpin(s)

	assert.Equal(t, pagemanager.PageNum(2), allocate(t, bp, tableID))

	numPages, free := headerOf(t, bp, tableID)
	assert.Equal(t, uint64(4), numPages)
	assert.Equal(t, pagemanager.NoFreePage, free)
	for _, info := range bp.Slots() {
		assert.Zero(t, info.PinCount, "slot %d", info.Index)
	}
}

func TestAllocator_GrowthDoublesAndChainsAscending(t *testing.T) {
	bp, store, tableID := newTestPool(t, 8)
	defer bp.Close()

	assert.Equal(t, pagemanager.PageNum(1), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(2), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(3), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(4), allocate(t, bp, tableID))

	numPages, free := headerOf(t, bp, tableID)
	assert.Equal(t, uint64(8), numPages)
	assert.Equal(t, pagemanager.PageNum(5), free)

	// The rest of the new extent is already linked 5 -> 6 -> 7 on disk.
	buf := make([]byte, pagemanager.PageSize)
	for p, next := range map[pagemanager.PageNum]pagemanager.PageNum{5: 6, 6: 7, 7: pagemanager.NoFreePage} {
		require.NoError(t, store.MemStore.ReadPage(tableID, p, buf))
		assert.Equal(t, next, pagemanager.WrapPage(buf).NextFreePageNum(), "page %d", p)
	}
	size, err := store.NumPages(tableID)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), size)

	for want := pagemanager.PageNum(5); want <= 7; want++ {
		assert.Equal(t, want, allocate(t, bp, tableID))
	}
	assert.Equal(t, pagemanager.PageNum(8), allocate(t, bp, tableID))
	numPages, _ = headerOf(t, bp, tableID)
	assert.Equal(t, uint64(16), numPages)
}

func TestAllocator_CountsRawAppendsAsWrites(t *testing.T) {
	bp, store, tableID := newTestPool(t, 4)
	defer bp.Close()

	allocate(t, bp, tableID)

	stats := bp.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(2), stats.Reads)
	assert.Equal(t, int64(1), stats.Writes)
	assert.Equal(t, 1, store.appends)
	assert.Zero(t, store.writes)
}

func TestAllocator_FreeRejectsInvalidPages(t *testing.T) {
	bp, store, tableID := newTestPool(t, 8)
	defer bp.Close()
	otherTable, err := bp.OpenTable("other.db")
	require.NoError(t, err)

	header, err := bp.GetBuffer(tableID, pagemanager.HeaderPageNum)
	require.NoError(t, err)
	assert.ErrorIs(t, bp.FreePage(tableID, header), ErrInvalidPage)
	bp.Unpin(header)

	s, err := bp.AllocatePage(tableID)
	require.NoError(t, err)
	assert.ErrorIs(t, bp.FreePage(otherTable, s), ErrInvalidPage)

	require.NoError(t, bp.FreePage(tableID, s))
	assert.ErrorIs(t, bp.FreePage(tableID, s), ErrInvalidPage, "double free")
	bp.Unpin(s)

	// Page 5 exists in the file but lies past the header's page count.
	extendTable(t, store, tableID, 5)
	beyond, err := bp.GetBuffer(tableID, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, bp.FreePage(tableID, beyond), ErrInvalidPage)
	bp.Unpin(beyond)

	numPages, free := headerOf(t, bp, tableID)
	assert.Equal(t, uint64(2), numPages)
	assert.Equal(t, pagemanager.PageNum(1), free)
}

func TestAllocator_CorruptFreeListHead(t *testing.T) {
	bp, _, tableID := newTestPool(t, 4)
	defer bp.Close()

	header, err := bp.GetBuffer(tableID, pagemanager.HeaderPageNum)
	require.NoError(t, err)
	header.Page().SetFreePageNum(50)
	bp.Unpin(header)

	_, err = bp.AllocatePage(tableID)
	require.ErrorIs(t, err, ErrCorruptFreeList)
	assert.Zero(t, header.PinCount(), "the header is released on error")
}

func TestAllocator_GrowthFailureLeavesHeaderUntouched(t *testing.T) {
	bp, store, tableID := newTestPool(t, 4)
	defer bp.Close()

	// Load the header first so the injected failure hits the append.
	numPages, _ := headerOf(t, bp, tableID)
	require.Equal(t, uint64(1), numPages)

	store.failWrite = true
	_, err := bp.AllocatePage(tableID)
	require.ErrorIs(t, err, errInjected)
	store.failWrite = false

	numPages, free := headerOf(t, bp, tableID)
	assert.Equal(t, uint64(1), numPages)
	assert.Equal(t, pagemanager.NoFreePage, free)
}

func TestAllocator_GrowthResumesAfterPartialExtend(t *testing.T) {
	bp, store, tableID := newTestPool(t, 8)
	defer bp.Close()
	for want := pagemanager.PageNum(1); want <= 3; want++ {
		require.Equal(t, want, allocate(t, bp, tableID))
	}

	// Growing 4 -> 8 appends page 4, then fails on page 5.
	store.failAppendAt = store.appendAttempts + 2
	_, err := bp.AllocatePage(tableID)
	require.ErrorIs(t, err, errInjected)
	size, err := store.NumPages(tableID)
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)
	numPages, free := headerOf(t, bp, tableID)
	require.Equal(t, uint64(4), numPages)
	require.Equal(t, pagemanager.NoFreePage, free)

	writesBefore := store.writes
	assert.Equal(t, pagemanager.PageNum(4), allocate(t, bp, tableID))
	assert.Equal(t, writesBefore+1, store.writes, "page 4 is overwritten in place")
	numPages, free = headerOf(t, bp, tableID)
	assert.Equal(t, uint64(8), numPages)
	assert.Equal(t, pagemanager.PageNum(5), free)

	for want := pagemanager.PageNum(5); want <= 8; want++ {
		assert.Equal(t, want, allocate(t, bp, tableID))
	}
}

func TestAllocator_FreeRejectsPageDeeperInList(t *testing.T) {
	bp, _, tableID := newTestPool(t, 4)
	defer bp.Close()
	for want := pagemanager.PageNum(1); want <= 3; want++ {
		require.Equal(t, want, allocate(t, bp, tableID))
	}

	free := func(p pagemanager.PageNum) error {
		s, err := bp.GetBuffer(tableID, p)
		require.NoError(t, err)
		defer bp.Unpin(s)
		return bp.FreePage(tableID, s)
	}
	require.NoError(t, free(2))
	require.NoError(t, free(3))
	assert.ErrorIs(t, free(2), ErrInvalidPage, "page 2 sits behind the head")

	assert.Equal(t, pagemanager.PageNum(3), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(2), allocate(t, bp, tableID))
	assert.Equal(t, pagemanager.PageNum(4), allocate(t, bp, tableID), "an empty list grows the table")
}

func TestAllocator_FreeDetectsCyclicList(t *testing.T) {
	bp, _, tableID := newTestPool(t, 4)
	defer bp.Close()
	for want := pagemanager.PageNum(1); want <= 3; want++ {
		require.Equal(t, want, allocate(t, bp, tableID))
	}

	for _, p := range []pagemanager.PageNum{2, 3} {
		s, err := bp.GetBuffer(tableID, p)
		require.NoError(t, err)
		require.NoError(t, bp.FreePage(tableID, s))
		bp.Unpin(s)
	}
	// List is 3 -> 2; point 2 back at 3.
	s, err := bp.GetBuffer(tableID, 2)
	require.NoError(t, err)
	s.Page().SetNextFreePageNum(3)
	bp.Unpin(s)

	one, err := bp.GetBuffer(tableID, 1)
	require.NoError(t, err)
	defer bp.Unpin(one)
	assert.ErrorIs(t, bp.FreePage(tableID, one), ErrCorruptFreeList)
}
