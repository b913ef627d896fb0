package pagemanager

import (
	"encoding/binary"
	"math"
)

// --- Page Management ---

const (
	// PageSize is the size of every page in a table file and of every buffer in the pool.
	PageSize = 4096

	// HeaderPageNum is the page that stores table-wide metadata.
	HeaderPageNum PageNum = 0

	// TableMagic identifies a table file created by this engine ("GJBF").
	TableMagic uint32 = 0x474A4246
)

// TableID identifies an open table file.
type TableID int64

// InvalidTableID marks an unbound buffer slot.
const InvalidTableID TableID = -1

// PageNum is the position of a page inside a table file.
type PageNum uint64

const (
	// InvalidPageNum marks an unbound buffer slot.
	InvalidPageNum PageNum = math.MaxUint64
	// NoFreePage terminates the on-disk free-page list.
	NoFreePage PageNum = math.MaxUint64
)

// Byte offsets of the fields stored in the header page (page 0).
const (
	headerFreePageOffset = 0
	headerNumPagesOffset = 8
	headerMagicOffset    = 16
	headerPageSizeOffset = 20
)

// Byte offset of the link stored in a page that sits on the free-page list.
const freeNextOffset = 0

// Page represents the in-memory copy of one disk page.
type Page struct {
	data []byte
}

// NewPage creates a zeroed page buffer.
func NewPage() *Page {
	return &Page{data: make([]byte, PageSize)}
}

// WrapPage views an existing PageSize buffer as a Page without copying.
func WrapPage(data []byte) *Page {
	return &Page{data: data}
}

// Reset zeroes the page so stale content never leaks into a new binding.
func (p *Page) Reset() {
	for i := range p.data {
		p.data[i] = 0
	}
}

func (p *Page) GetData() []byte        { return p.data }
func (p *Page) SetData(newData []byte) { copy(p.data, newData) }

// --- Header page view ---

// FreePageNum returns the head of the table's free-page list.
func (p *Page) FreePageNum() PageNum {
	return PageNum(binary.LittleEndian.Uint64(p.data[headerFreePageOffset:]))
}

func (p *Page) SetFreePageNum(n PageNum) {
	binary.LittleEndian.PutUint64(p.data[headerFreePageOffset:], uint64(n))
}

// NumPages returns the total number of pages in the table, header included.
func (p *Page) NumPages() uint64 {
	return binary.LittleEndian.Uint64(p.data[headerNumPagesOffset:])
}

func (p *Page) SetNumPages(n uint64) {
	binary.LittleEndian.PutUint64(p.data[headerNumPagesOffset:], n)
}

func (p *Page) Magic() uint32 {
	return binary.LittleEndian.Uint32(p.data[headerMagicOffset:])
}

func (p *Page) HeaderPageSize() uint32 {
	return binary.LittleEndian.Uint32(p.data[headerPageSizeOffset:])
}

// InitHeader formats the page as the header of an empty table:
// one page in total and an empty free-page list.
func (p *Page) InitHeader() {
	p.Reset()
	p.SetFreePageNum(NoFreePage)
	p.SetNumPages(1)
	binary.LittleEndian.PutUint32(p.data[headerMagicOffset:], TableMagic)
	binary.LittleEndian.PutUint32(p.data[headerPageSizeOffset:], PageSize)
}

// --- Free page view ---

// NextFreePageNum returns the link stored in a page on the free-page list.
func (p *Page) NextFreePageNum() PageNum {
	return PageNum(binary.LittleEndian.Uint64(p.data[freeNextOffset:]))
}

func (p *Page) SetNextFreePageNum(n PageNum) {
	binary.LittleEndian.PutUint64(p.data[freeNextOffset:], uint64(n))
}
