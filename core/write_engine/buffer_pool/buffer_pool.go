// Package bufferpool caches fixed-size table pages in a fixed set of memory
// slots. It finds cached pages through a chained hashtable, hands out unused
// slots from a freelist, evicts with a clock sweep, and tracks pins and dirty
// state. Page allocation inside a table file is layered on top (allocator.go).
//
// A BufferPool is not safe for concurrent use.
package bufferpool

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	pagestore "github.com/sushant-115/gojobuf/core/storage_engine/page_store"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/gojobuf/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MinSlots is the smallest pool New accepts.
const MinSlots = 4

// Config sizes a buffer pool.
type Config struct {
	// NumHashEntries is the number of hashtable buckets.
	NumHashEntries uint32 `yaml:"num_hash_entries"`
	// NumSlots is the number of cached pages.
	NumSlots uint32 `yaml:"num_slots"`
	// MaxMemoryBytes caps NumSlots*PageSize. Zero means no cap.
	MaxMemoryBytes uint64 `yaml:"max_memory_bytes"`
}

// Validate checks the sizes New depends on.
func (c Config) Validate() error {
	if c.NumSlots < MinSlots {
		return fmt.Errorf("%w: num_slots must be at least %d, got %d", ErrInvalidConfig, MinSlots, c.NumSlots)
	}
	if c.NumHashEntries == 0 {
		return fmt.Errorf("%w: num_hash_entries must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) arenaSize() (uint64, error) {
	if uint64(c.NumSlots) > math.MaxInt/pagemanager.PageSize {
		return 0, fmt.Errorf("%w: %d slots overflow the address space", ErrAllocationFailure, c.NumSlots)
	}
	size := uint64(c.NumSlots) * pagemanager.PageSize
	if c.MaxMemoryBytes != 0 && size > c.MaxMemoryBytes {
		return 0, fmt.Errorf("%w: %d bytes requested, limit is %d", ErrAllocationFailure, size, c.MaxMemoryBytes)
	}
	return size, nil
}

// Option customizes a BufferPool.
type Option func(*BufferPool)

// WithLogger sets the logger. The pool names it "buffer_pool".
func WithLogger(logger *zap.Logger) Option {
	return func(bp *BufferPool) {
		if logger != nil {
			bp.logger = logger
		}
	}
}

// WithMeter sets the meter the pool's instruments are created on.
func WithMeter(meter metric.Meter) Option {
	return func(bp *BufferPool) { bp.meter = meter }
}

// BufferPool manages the slots, their bindings and the I/O behind them.
type BufferPool struct {
	id     string
	store  pagestore.PageStore
	logger *zap.Logger
	meter  metric.Meter

	arena     []byte
	slots     []*Slot
	hashTable *hashTable
	freeList  *freeList
	clockHand int

	stats   Stats
	metrics *internaltelemetry.BufferPoolMetrics
	attrs   metric.MeasurementOption
	closed  bool
}

// New validates cfg, opens the store and allocates every slot. All slots start
// unbound on the freelist, slot 0 first in line.
func New(cfg Config, store pagestore.PageStore, opts ...Option) (*BufferPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	size, err := cfg.arenaSize()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: page store is required", ErrInvalidConfig)
	}

	bp := &BufferPool{
		id:     uuid.NewString(),
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bp)
	}
	bp.logger = bp.logger.Named("buffer_pool").With(zap.String("pool_id", bp.id))
	bp.attrs = metric.WithAttributes(attribute.String("pool_id", bp.id))

	if err := store.Open(); err != nil {
		bp.logger.Error("Failed to open page store", zap.Error(err))
		return nil, fmt.Errorf("failed to open page store: %w", err)
	}

	n := int(cfg.NumSlots)
	bp.arena = make([]byte, size)
	bp.slots = make([]*Slot, n)
	for i := 0; i < n; i++ {
		bp.slots[i] = newSlot(bp, i, bp.arena[i*pagemanager.PageSize:(i+1)*pagemanager.PageSize:(i+1)*pagemanager.PageSize])
	}
	bp.hashTable = newHashTable(cfg.NumHashEntries, bp.slots)
	bp.freeList = newFreeList(n)
	for i := n - 1; i >= 0; i-- {
		bp.freeList.push(i)
	}

	metrics, err := internaltelemetry.NewBufferPoolMetrics(bp.meter, bp.pinnedSlots, bp.attrs)
	if err != nil {
		_ = store.CloseTableFiles()
		return nil, fmt.Errorf("failed to create buffer pool metrics: %w", err)
	}
	bp.metrics = metrics

	bp.logger.Info("Buffer pool initialized",
		zap.Uint32("num_slots", cfg.NumSlots),
		zap.Uint32("num_hash_entries", cfg.NumHashEntries),
		zap.Uint64("arena_bytes", size))
	return bp, nil
}

// ID returns the pool's instance id, also attached to its logs and metrics.
func (bp *BufferPool) ID() string { return bp.id }

// NumSlots returns the number of slots in the pool.
func (bp *BufferPool) NumSlots() int { return len(bp.slots) }

// FreeSlots returns how many slots sit unbound on the freelist.
func (bp *BufferPool) FreeSlots() int {
	if bp.closed {
		return 0
	}
	return bp.freeList.len()
}

// Close writes back every dirty slot, then releases the slots and closes the
// page store. Teardown completes even if a write-back fails; the first error
// is returned.
func (bp *BufferPool) Close() error {
	if bp.closed {
		return ErrPoolClosed
	}
	firstErr := bp.flushAll()

	if err := bp.store.CloseTableFiles(); err != nil {
		bp.logger.Error("Failed to close table files", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	if err := bp.metrics.Unregister(); err != nil {
		bp.logger.Warn("Failed to unregister metrics callback", zap.Error(err))
	}

	bp.closed = true
	bp.slots = nil
	bp.arena = nil
	bp.hashTable = nil
	bp.freeList = nil
	bp.logger.Info("Buffer pool closed", zap.String("stats", bp.stats.String()))
	return firstErr
}

// OpenTable opens (creating if needed) the table file at path.
func (bp *BufferPool) OpenTable(path string) (pagemanager.TableID, error) {
	if bp.closed {
		return pagemanager.InvalidTableID, ErrPoolClosed
	}
	tableID, err := bp.store.OpenTableFile(path)
	if err != nil {
		bp.logger.Error("Failed to open table", zap.String("path", path), zap.Error(err))
		return pagemanager.InvalidTableID, err
	}
	bp.logger.Debug("Opened table", zap.String("path", path), zap.Int64("table_id", int64(tableID)))
	return tableID, nil
}

// GetBuffer returns the slot holding the page, reading it from the table file
// on a miss. The slot comes back pinned; the caller must Unpin it.
// A hit does no I/O. A miss does at most one write-back and one read.
func (bp *BufferPool) GetBuffer(tableID pagemanager.TableID, pageNum pagemanager.PageNum) (*Slot, error) {
	if bp.closed {
		return nil, ErrPoolClosed
	}
	bp.stats.Gets++
	bp.metrics.GetsCounter.Add(context.Background(), 1, bp.attrs)

	if idx, ok := bp.hashTable.lookup(tableID, pageNum); ok {
		s := bp.slots[idx]
		bp.pin(s)
		bp.metrics.HitsCounter.Add(context.Background(), 1, bp.attrs)
		bp.logger.Debug("Buffer hit",
			zap.Int64("table_id", int64(tableID)),
			zap.Uint64("page_num", uint64(pageNum)),
			zap.Int("slot", s.index),
			zap.Uint32("pin_count", s.pinCount))
		return s, nil
	}

	victim, err := bp.selectVictim()
	if err != nil {
		bp.metrics.VictimUnavailableCounter.Add(context.Background(), 1, bp.attrs)
		bp.logger.Warn("No victim for buffer miss",
			zap.Int64("table_id", int64(tableID)),
			zap.Uint64("page_num", uint64(pageNum)),
			zap.Error(err))
		return nil, err
	}

	if victim.isBound() {
		if victim.dirty {
			if err := bp.writeBack(victim); err != nil {
				return nil, fmt.Errorf("failed to write back victim page %d of table %d: %w", victim.pageNum, victim.tableID, err)
			}
		}
		if err := bp.hashTable.delete(victim); err != nil {
			bp.stats.BindingAnomalies++
			bp.metrics.BindingAnomalyCounter.Add(context.Background(), 1, bp.attrs)
			bp.logger.Warn("Evicted slot had no hashtable binding",
				zap.Int("slot", victim.index),
				zap.Int64("table_id", int64(victim.tableID)),
				zap.Uint64("page_num", uint64(victim.pageNum)),
				zap.Error(err))
		}
		bp.metrics.EvictionsCounter.Add(context.Background(), 1, bp.attrs)
		bp.logger.Debug("Evicted page",
			zap.Int("slot", victim.index),
			zap.Int64("table_id", int64(victim.tableID)),
			zap.Uint64("page_num", uint64(victim.pageNum)))
	}

	victim.bind(tableID, pageNum)
	if err := bp.readPage(victim); err != nil {
		victim.unbind()
		bp.freeList.push(victim.index)
		return nil, fmt.Errorf("failed to read page %d of table %d: %w", pageNum, tableID, err)
	}
	bp.pin(victim)
	bp.hashTable.insert(victim)
	bp.logger.Debug("Buffer miss loaded page",
		zap.Int64("table_id", int64(tableID)),
		zap.Uint64("page_num", uint64(pageNum)),
		zap.Int("slot", victim.index))
	return victim, nil
}

// Lookup probes the cache without pinning and without counting a get.
func (bp *BufferPool) Lookup(tableID pagemanager.TableID, pageNum pagemanager.PageNum) (*Slot, bool) {
	if bp.closed {
		return nil, false
	}
	idx, ok := bp.hashTable.lookup(tableID, pageNum)
	if !ok {
		return nil, false
	}
	return bp.slots[idx], true
}

// Pin adds a pin to the slot and marks it recently used.
func (bp *BufferPool) Pin(s *Slot) {
	if bp.checkSlot(s, "pin") != nil {
		return
	}
	bp.pin(s)
}

func (bp *BufferPool) pin(s *Slot) {
	s.pinCount++
	if s.usageCount < MaxUsageCount {
		s.usageCount++
	}
}

// Unpin releases one pin. Releasing an unpinned slot is logged and ignored.
func (bp *BufferPool) Unpin(s *Slot) {
	if bp.checkSlot(s, "unpin") != nil {
		return
	}
	if s.pinCount == 0 {
		bp.logger.Warn("Unpin of slot with pin count 0",
			zap.Int("slot", s.index),
			zap.Int64("table_id", int64(s.tableID)),
			zap.Uint64("page_num", uint64(s.pageNum)))
		return
	}
	s.pinCount--
}

// MarkDirty records that the slot's page differs from its on-disk copy.
func (bp *BufferPool) MarkDirty(s *Slot) {
	if bp.checkSlot(s, "mark dirty") != nil {
		return
	}
	s.dirty = true
}

// FlushSlot writes the slot's page back if it is dirty.
func (bp *BufferPool) FlushSlot(s *Slot) error {
	if err := bp.checkSlot(s, "flush"); err != nil {
		return err
	}
	if !s.dirty {
		return nil
	}
	return bp.writeBack(s)
}

// FlushAll writes back every dirty slot. It keeps going after a failure and
// returns the first error.
func (bp *BufferPool) FlushAll() error {
	if bp.closed {
		return ErrPoolClosed
	}
	return bp.flushAll()
}

func (bp *BufferPool) flushAll() error {
	var firstErr error
	flushed := 0
	for _, s := range bp.slots {
		if !s.isBound() || !s.dirty {
			continue
		}
		if err := bp.writeBack(s); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		flushed++
	}
	bp.logger.Debug("Flushed dirty slots", zap.Int("flushed", flushed))
	return firstErr
}

// Slots returns a snapshot of every descriptor.
func (bp *BufferPool) Slots() []SlotInfo {
	infos := make([]SlotInfo, len(bp.slots))
	for i, s := range bp.slots {
		infos[i] = s.info()
	}
	return infos
}

func (bp *BufferPool) pinnedSlots() int64 {
	var n int64
	for _, s := range bp.slots {
		if s.pinCount > 0 {
			n++
		}
	}
	return n
}

// checkSlot rejects slots that are nil, unbound or owned by another pool.
func (bp *BufferPool) checkSlot(s *Slot, op string) error {
	var reason string
	switch {
	case bp.closed:
		return ErrPoolClosed
	case s == nil:
		reason = "nil slot"
	case s.pool != bp:
		reason = "slot belongs to another pool"
	case !s.isBound():
		reason = "slot is not bound to a page"
	default:
		return nil
	}
	bp.logger.Warn("Rejected slot operation", zap.String("op", op), zap.String("reason", reason))
	return fmt.Errorf("%w: %s: %s", ErrPreconditionViolation, op, reason)
}

func (bp *BufferPool) readPage(s *Slot) error {
	if err := bp.store.ReadPage(s.tableID, s.pageNum, s.Data()); err != nil {
		bp.logger.Error("Failed to read page",
			zap.Int64("table_id", int64(s.tableID)),
			zap.Uint64("page_num", uint64(s.pageNum)),
			zap.Error(err))
		return err
	}
	bp.stats.Reads++
	bp.metrics.ReadsCounter.Add(context.Background(), 1, bp.attrs)
	return nil
}

// writeBack writes a bound slot's page and marks it clean.
func (bp *BufferPool) writeBack(s *Slot) error {
	if err := bp.store.WritePage(s.tableID, s.pageNum, s.Data()); err != nil {
		bp.logger.Error("Failed to write page",
			zap.Int64("table_id", int64(s.tableID)),
			zap.Uint64("page_num", uint64(s.pageNum)),
			zap.Error(err))
		return err
	}
	s.dirty = false
	bp.countWrite()
	return nil
}

// appendRaw extends a table file without going through the cache.
func (bp *BufferPool) appendRaw(tableID pagemanager.TableID, pageNum pagemanager.PageNum, src []byte) error {
	if err := bp.store.AppendRawPage(tableID, pageNum, src); err != nil {
		if errors.Is(err, pagestore.ErrRawWriteOverlap) {
			return err
		}
		bp.logger.Error("Failed to append page",
			zap.Int64("table_id", int64(tableID)),
			zap.Uint64("page_num", uint64(pageNum)),
			zap.Error(err))
		return err
	}
	bp.countWrite()
	return nil
}

func (bp *BufferPool) countWrite() {
	bp.stats.Writes++
	bp.metrics.WritesCounter.Add(context.Background(), 1, bp.attrs)
}
