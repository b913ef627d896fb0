package bufferpool

import (
	"errors"
	"fmt"

	pagestore "github.com/sushant-115/gojobuf/core/storage_engine/page_store"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	"go.uber.org/zap"
)

// AllocatePage hands out an unused page of the table, pinned. Pages freed
// with FreePage are reused first; when the free-page list is empty the table
// file doubles in size and the lowest new page is returned while the rest
// are chained onto the list in ascending order.
func (bp *BufferPool) AllocatePage(tableID pagemanager.TableID) (*Slot, error) {
	header, err := bp.GetBuffer(tableID, pagemanager.HeaderPageNum)
	if err != nil {
		return nil, fmt.Errorf("failed to load header of table %d: %w", tableID, err)
	}
	defer bp.Unpin(header)

	hp := header.Page()
	numPages := pagemanager.PageNum(hp.NumPages())

	if head := hp.FreePageNum(); head != pagemanager.NoFreePage {
		if head == pagemanager.HeaderPageNum || head >= numPages {
			bp.logger.Error("Free-page list head out of range",
				zap.Int64("table_id", int64(tableID)),
				zap.Uint64("head", uint64(head)),
				zap.Uint64("num_pages", uint64(numPages)))
			return nil, fmt.Errorf("%w: head %d, table %d has %d pages", ErrCorruptFreeList, head, tableID, numPages)
		}
		s, err := bp.GetBuffer(tableID, head)
		if err != nil {
			return nil, fmt.Errorf("failed to load free page %d of table %d: %w", head, tableID, err)
		}
		hp.SetFreePageNum(s.Page().NextFreePageNum())
		bp.MarkDirty(header)
		bp.logger.Debug("Allocated page from free list",
			zap.Int64("table_id", int64(tableID)),
			zap.Uint64("page_num", uint64(head)))
		return s, nil
	}

	return bp.growTable(tableID, header, numPages)
}

// growTable doubles the table file. Pages n..2n-1 are appended directly to
// the file since none of them can be cached yet; page n is then loaded
// through the cache and returned.
func (bp *BufferPool) growTable(tableID pagemanager.TableID, header *Slot, n pagemanager.PageNum) (*Slot, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: header of table %d reports zero pages", ErrCorruptFreeList, tableID)
	}
	total := 2 * n

	page := pagemanager.NewPage()
	for p := n; p < total; p++ {
		page.Reset()
		if p+1 < total {
			page.SetNextFreePageNum(p + 1)
		} else {
			page.SetNextFreePageNum(pagemanager.NoFreePage)
		}
		if err := bp.writeNewPage(tableID, p, page); err != nil {
			return nil, fmt.Errorf("failed to extend table %d to %d pages: %w", tableID, total, err)
		}
	}

	hp := header.Page()
	s, err := bp.GetBuffer(tableID, n)
	if err != nil {
		// The file already holds the new pages; keep them all reachable.
		hp.SetFreePageNum(n)
		hp.SetNumPages(uint64(total))
		bp.MarkDirty(header)
		return nil, fmt.Errorf("failed to load new page %d of table %d: %w", n, tableID, err)
	}

	if n+1 < total {
		hp.SetFreePageNum(n + 1)
	} else {
		hp.SetFreePageNum(pagemanager.NoFreePage)
	}
	hp.SetNumPages(uint64(total))
	bp.MarkDirty(header)
	bp.logger.Debug("Grew table",
		zap.Int64("table_id", int64(tableID)),
		zap.Uint64("num_pages", uint64(total)),
		zap.Uint64("page_num", uint64(n)))
	return s, nil
}

// writeNewPage stores one page of a growing extent. A page left in the file
// by an earlier, interrupted growth is overwritten in place, and a page that
// is already cached is rewritten through its slot so the cache stays
// authoritative.
func (bp *BufferPool) writeNewPage(tableID pagemanager.TableID, pageNum pagemanager.PageNum, page *pagemanager.Page) error {
	if s, ok := bp.Lookup(tableID, pageNum); ok {
		s.Page().SetData(page.GetData())
		s.dirty = true
		return nil
	}
	err := bp.appendRaw(tableID, pageNum, page.GetData())
	if !errors.Is(err, pagestore.ErrRawWriteOverlap) {
		return err
	}
	bp.logger.Info("Overwriting page left by an interrupted growth",
		zap.Int64("table_id", int64(tableID)),
		zap.Uint64("page_num", uint64(pageNum)))
	if err := bp.store.WritePage(tableID, pageNum, page.GetData()); err != nil {
		return err
	}
	bp.countWrite()
	return nil
}

// FreePage pushes the slot's page onto the table's free-page list. The
// caller still holds its pin on slot and must Unpin it.
func (bp *BufferPool) FreePage(tableID pagemanager.TableID, s *Slot) error {
	if err := bp.checkSlot(s, "free page"); err != nil {
		return err
	}
	if s.tableID != tableID {
		return fmt.Errorf("%w: slot holds a page of table %d, not %d", ErrInvalidPage, s.tableID, tableID)
	}
	if s.pageNum == pagemanager.HeaderPageNum {
		return fmt.Errorf("%w: the header page cannot be freed", ErrInvalidPage)
	}

	header, err := bp.GetBuffer(tableID, pagemanager.HeaderPageNum)
	if err != nil {
		return fmt.Errorf("failed to load header of table %d: %w", tableID, err)
	}
	defer bp.Unpin(header)

	hp := header.Page()
	if uint64(s.pageNum) >= hp.NumPages() {
		return fmt.Errorf("%w: page %d is beyond the %d pages of table %d", ErrInvalidPage, s.pageNum, hp.NumPages(), tableID)
	}
	if err := bp.checkNotFree(tableID, hp, s.pageNum); err != nil {
		return err
	}

	s.Page().SetNextFreePageNum(hp.FreePageNum())
	hp.SetFreePageNum(s.pageNum)
	bp.MarkDirty(s)
	bp.MarkDirty(header)
	bp.logger.Debug("Freed page",
		zap.Int64("table_id", int64(tableID)),
		zap.Uint64("page_num", uint64(s.pageNum)))
	return nil
}

// checkNotFree walks the table's free-page list looking for pageNum. The walk
// takes at most NumPages hops, so a list that is already cyclic or points
// outside the table is reported as corrupt instead of looping.
func (bp *BufferPool) checkNotFree(tableID pagemanager.TableID, hp *pagemanager.Page, pageNum pagemanager.PageNum) error {
	numPages := hp.NumPages()
	cur := hp.FreePageNum()
	for hops := uint64(0); cur != pagemanager.NoFreePage; hops++ {
		if cur == pageNum {
			return fmt.Errorf("%w: page %d of table %d is already free", ErrInvalidPage, pageNum, tableID)
		}
		if hops >= numPages || cur == pagemanager.HeaderPageNum || uint64(cur) >= numPages {
			return fmt.Errorf("%w: table %d, reached page %d after %d hops", ErrCorruptFreeList, tableID, cur, hops)
		}
		s, err := bp.GetBuffer(tableID, cur)
		if err != nil {
			return fmt.Errorf("failed to load free page %d of table %d: %w", cur, tableID, err)
		}
		next := s.Page().NextFreePageNum()
		bp.Unpin(s)
		cur = next
	}
	return nil
}
