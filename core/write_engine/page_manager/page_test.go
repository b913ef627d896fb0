package pagemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitHeader(t *testing.T) {
	p := NewPage()
	p.GetData()[100] = 0xFF // stale byte must not survive

	p.InitHeader()

	assert.Equal(t, NoFreePage, p.FreePageNum())
	assert.Equal(t, uint64(1), p.NumPages())
	assert.Equal(t, TableMagic, p.Magic())
	assert.Equal(t, uint32(PageSize), p.HeaderPageSize())
	assert.Zero(t, p.GetData()[100])
}

func TestHeaderAndFreeLinkShareLayout(t *testing.T) {
	p := NewPage()
	p.SetFreePageNum(7)
	p.SetNumPages(16)

	require.Equal(t, PageNum(7), p.FreePageNum())
	require.Equal(t, uint64(16), p.NumPages())

	// a free page stores its link where the header keeps the list head
	p.SetNextFreePageNum(42)
	assert.Equal(t, PageNum(42), p.NextFreePageNum())
	assert.Equal(t, PageNum(42), p.FreePageNum())
}

func TestWrapPageDoesNotCopy(t *testing.T) {
	buf := make([]byte, PageSize)
	p := WrapPage(buf)
	p.SetNextFreePageNum(NoFreePage)

	assert.Equal(t, NoFreePage, WrapPage(buf).NextFreePageNum())

	p.Reset()
	assert.Equal(t, make([]byte, PageSize), buf)
}
