package bufferpool

import (
	"fmt"

	"go.uber.org/zap"
)

// selectVictim returns a slot to hold a new binding: an unbound slot from the
// freelist when one exists, otherwise the slot the clock sweep settles on.
// The returned slot may still be bound (and dirty); the caller evicts it.
func (bp *BufferPool) selectVictim() (*Slot, error) {
	if idx, ok := bp.freeList.pop(); ok {
		return bp.slots[idx], nil
	}
	return bp.clockSweep()
}

// clockSweep advances the hand until it finds an unpinned slot whose usage
// count has decayed to zero. Unpinned slots lose one usage point per pass;
// pinned slots are skipped untouched. The sweep gives up only after a full
// run of consecutive pinned slots, i.e. one complete pass with nothing
// evictable.
func (bp *BufferPool) clockSweep() (*Slot, error) {
	n := len(bp.slots)
	pinnedRun := 0
	for {
		s := bp.slots[bp.clockHand]
		bp.clockHand = (bp.clockHand + 1) % n

		if s.pinCount > 0 {
			pinnedRun++
			if pinnedRun >= n {
				return nil, fmt.Errorf("%w: all %d slots pinned", ErrVictimUnavailable, n)
			}
			continue
		}
		pinnedRun = 0

		if s.usageCount == 0 {
			bp.logger.Debug("Clock sweep selected victim",
				zap.Int("slot", s.index),
				zap.Int64("table_id", int64(s.tableID)),
				zap.Uint64("page_num", uint64(s.pageNum)))
			return s, nil
		}
		s.usageCount--
	}
}
