package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"

	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// workloadConfig describes one bench run.
type workloadConfig struct {
	Tables        int
	PagesPerTable int
	Ops           int
	OpsPerSec     float64 // 0 means unpaced
	Seed          int64
}

type workloadResult struct {
	Ops       int
	Writes    int
	Frees     int
	Allocs    int
	Failures  int
	PoolStats bufferpool.Stats
}

// table tracks the pages the workload owns in one table file.
type table struct {
	id    pagemanager.TableID
	pages []pagemanager.PageNum
}

type workload struct {
	cfg    workloadConfig
	pool   *bufferpool.BufferPool
	tracer trace.Tracer
	logger *zap.Logger
	rng    *rand.Rand
	tables []*table
}

func newWorkload(cfg workloadConfig, pool *bufferpool.BufferPool, tracer trace.Tracer, logger *zap.Logger) *workload {
	return &workload{
		cfg:    cfg,
		pool:   pool,
		tracer: tracer,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// setup opens the tables and allocates their pages, stamping each page with
// its own number.
func (w *workload) setup(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "bench.setup")
	defer span.End()

	for i := 0; i < w.cfg.Tables; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := w.pool.OpenTable(fmt.Sprintf("bench_%d.db", i))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		t := &table{id: id}
		for p := 0; p < w.cfg.PagesPerTable; p++ {
			s, err := w.pool.AllocatePage(id)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return fmt.Errorf("failed to allocate page %d of table %d: %w", p, id, err)
			}
			stamp(s)
			w.pool.MarkDirty(s)
			w.pool.Unpin(s)
			t.pages = append(t.pages, s.PageNum())
		}
		w.tables = append(w.tables, t)
	}
	span.SetAttributes(
		attribute.Int("bench.tables", w.cfg.Tables),
		attribute.Int("bench.pages_per_table", w.cfg.PagesPerTable))
	return w.pool.FlushAll()
}

// run performs the random get/write/free mix, paced by a token bucket.
// res.PoolStats is filled in even when the run stops early.
func (w *workload) run(ctx context.Context) (res workloadResult, err error) {
	ctx, span := w.tracer.Start(ctx, "bench.run")
	defer span.End()
	defer func() { res.PoolStats = w.pool.Stats() }()

	var limiter *rate.Limiter
	if w.cfg.OpsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(w.cfg.OpsPerSec), 1)
	}

	for i := 0; i < w.cfg.Ops; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, err
			}
		} else if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := w.step(&res); err != nil {
			res.Failures++
			w.logger.Warn("Workload step failed", zap.Int("op", i), zap.Error(err))
			if errors.Is(err, bufferpool.ErrPoolClosed) {
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}
		}
		res.Ops++
	}

	ratio, _ := w.pool.Stats().HitRatio()
	span.SetAttributes(
		attribute.Int("bench.ops", res.Ops),
		attribute.Int("bench.failures", res.Failures),
		attribute.Int64("bench.hit_ratio", ratio))
	return res, nil
}

func (w *workload) step(res *workloadResult) error {
	t := w.tables[w.rng.Intn(len(w.tables))]
	if len(t.pages) == 0 {
		return w.alloc(t, res)
	}
	i := w.rng.Intn(len(t.pages))
	pageNum := t.pages[i]

	switch r := w.rng.Intn(100); {
	case r < 70:
		s, err := w.pool.GetBuffer(t.id, pageNum)
		if err != nil {
			return err
		}
		defer w.pool.Unpin(s)
		if got := stamped(s); got != pageNum {
			return fmt.Errorf("page %d of table %d holds stamp %d", pageNum, t.id, got)
		}
		return nil
	case r < 90:
		s, err := w.pool.GetBuffer(t.id, pageNum)
		if err != nil {
			return err
		}
		defer w.pool.Unpin(s)
		stamp(s)
		w.pool.MarkDirty(s)
		res.Writes++
		return nil
	default:
		s, err := w.pool.GetBuffer(t.id, pageNum)
		if err != nil {
			return err
		}
		err = w.pool.FreePage(t.id, s)
		w.pool.Unpin(s)
		if err != nil {
			return err
		}
		t.pages = append(t.pages[:i], t.pages[i+1:]...)
		res.Frees++
		return w.alloc(t, res)
	}
}

func (w *workload) alloc(t *table, res *workloadResult) error {
	s, err := w.pool.AllocatePage(t.id)
	if err != nil {
		return err
	}
	defer w.pool.Unpin(s)
	stamp(s)
	w.pool.MarkDirty(s)
	t.pages = append(t.pages, s.PageNum())
	res.Allocs++
	return nil
}

// stampOffset keeps the stamp clear of the free-list link at offset 0.
const stampOffset = 8

// stamp writes the page number into the page body.
func stamp(s *bufferpool.Slot) {
	binary.LittleEndian.PutUint64(s.Data()[stampOffset:], uint64(s.PageNum()))
}

func stamped(s *bufferpool.Slot) pagemanager.PageNum {
	return pagemanager.PageNum(binary.LittleEndian.Uint64(s.Data()[stampOffset:]))
}
