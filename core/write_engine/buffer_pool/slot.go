package bufferpool

import (
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

// MaxUsageCount caps how many clock passes a recently used slot survives.
const MaxUsageCount = 5

// Slot is one buffer descriptor: a cache line of the pool together with the
// page buffer it owns. Slots live as long as the pool; only their binding
// (table, page number, content) changes.
type Slot struct {
	pool       *BufferPool
	index      int
	tableID    pagemanager.TableID
	pageNum    pagemanager.PageNum
	page       *pagemanager.Page
	pinCount   uint32
	usageCount int
	dirty      bool
}

func newSlot(pool *BufferPool, index int, buf []byte) *Slot {
	s := &Slot{pool: pool, index: index, page: pagemanager.WrapPage(buf)}
	s.unbind()
	return s
}

// bind points the slot at a new page. Content is loaded separately.
func (s *Slot) bind(tableID pagemanager.TableID, pageNum pagemanager.PageNum) {
	s.tableID = tableID
	s.pageNum = pageNum
	s.pinCount = 0
	s.usageCount = 0
	s.dirty = false
}

func (s *Slot) unbind() {
	s.bind(pagemanager.InvalidTableID, pagemanager.InvalidPageNum)
	s.page.Reset()
}

func (s *Slot) isBound() bool {
	return s.tableID != pagemanager.InvalidTableID
}

func (s *Slot) Index() int                   { return s.index }
func (s *Slot) TableID() pagemanager.TableID { return s.tableID }
func (s *Slot) PageNum() pagemanager.PageNum { return s.pageNum }
func (s *Slot) Page() *pagemanager.Page      { return s.page }
func (s *Slot) Data() []byte                 { return s.page.GetData() }
func (s *Slot) PinCount() uint32             { return s.pinCount }
func (s *Slot) IsPinned() bool               { return s.pinCount > 0 }
func (s *Slot) UsageCount() int              { return s.usageCount }
func (s *Slot) IsDirty() bool                { return s.dirty }

// SlotInfo is a point-in-time copy of a descriptor for diagnostics.
type SlotInfo struct {
	Index      int
	TableID    pagemanager.TableID
	PageNum    pagemanager.PageNum
	PinCount   uint32
	UsageCount int
	Dirty      bool
}

// Bound reports whether the slot held a page when the snapshot was taken.
func (i SlotInfo) Bound() bool { return i.TableID != pagemanager.InvalidTableID }

func (s *Slot) info() SlotInfo {
	return SlotInfo{
		Index:      s.index,
		TableID:    s.tableID,
		PageNum:    s.pageNum,
		PinCount:   s.pinCount,
		UsageCount: s.usageCount,
		Dirty:      s.dirty,
	}
}
