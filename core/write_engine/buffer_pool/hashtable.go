package bufferpool

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

// hashTable maps (table, page number) to the slot holding that page.
// Collisions are chained: each bucket holds the indices of every bound slot
// whose key hashes to it.
type hashTable struct {
	slots   []*Slot
	buckets [][]int
	size    int
}

func newHashTable(numEntries uint32, slots []*Slot) *hashTable {
	return &hashTable{
		slots:   slots,
		buckets: make([][]int, numEntries),
	}
}

func (h *hashTable) bucket(tableID pagemanager.TableID, pageNum pagemanager.PageNum) int {
	var key [16]byte
	binary.LittleEndian.PutUint64(key[0:8], uint64(tableID))
	binary.LittleEndian.PutUint64(key[8:16], uint64(pageNum))
	return int(xxhash.Sum64(key[:]) % uint64(len(h.buckets)))
}

// lookup returns the index of the slot bound to the key.
func (h *hashTable) lookup(tableID pagemanager.TableID, pageNum pagemanager.PageNum) (int, bool) {
	for _, idx := range h.buckets[h.bucket(tableID, pageNum)] {
		s := h.slots[idx]
		if s.tableID == tableID && s.pageNum == pageNum {
			return idx, true
		}
	}
	return -1, false
}

// insert adds the slot's current binding. The caller guarantees the key is
// not present yet.
func (h *hashTable) insert(s *Slot) {
	b := h.bucket(s.tableID, s.pageNum)
	h.buckets[b] = append(h.buckets[b], s.index)
	h.size++
}

// delete removes the slot's current binding. It returns ErrBindingAnomaly
// when the slot is not chained under its key.
func (h *hashTable) delete(s *Slot) error {
	b := h.bucket(s.tableID, s.pageNum)
	chain := h.buckets[b]
	for i, idx := range chain {
		if idx != s.index {
			continue
		}
		if len(chain) == 1 {
			h.buckets[b] = nil
		} else {
			h.buckets[b] = append(chain[:i], chain[i+1:]...)
		}
		h.size--
		return nil
	}
	return ErrBindingAnomaly
}

func (h *hashTable) len() int { return h.size }
