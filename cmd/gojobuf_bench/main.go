// Command gojobuf_bench drives a paced random workload through a buffer pool
// and reports its statistics, optionally exposing metrics to Prometheus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pagestore "github.com/sushant-115/gojobuf/core/storage_engine/page_store"
	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
	"github.com/sushant-115/gojobuf/config"
	"github.com/sushant-115/gojobuf/pkg/logger"
	"github.com/sushant-115/gojobuf/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	configPath    = flag.String("config", "", "Path to a YAML config file")
	dataDir       = flag.String("data_dir", "", "Directory for bench table files (overrides config)")
	numSlots      = flag.Uint("slots", 0, "Number of buffer slots (overrides config)")
	tables        = flag.Int("tables", 4, "Number of tables")
	pagesPerTable = flag.Int("pages", 256, "Pages allocated per table before the run")
	ops           = flag.Int("ops", 100000, "Number of workload operations")
	opsPerSec     = flag.Float64("rate", 0, "Operations per second, 0 for unpaced")
	seed          = flag.Int64("seed", 1, "Random seed")
	promPort      = flag.Int("prometheus_port", -1, "Serve /metrics on this port (overrides config, -1 keeps it)")
	inMemory      = flag.Bool("in_memory", false, "Keep tables in memory instead of on disk")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *numSlots != 0 {
		cfg.BufferPool.NumSlots = uint32(*numSlots)
	}
	if *promPort >= 0 {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.PrometheusPort = *promPort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *tables <= 0 || *pagesPerTable < 0 || *ops < 0 {
		return fmt.Errorf("tables must be positive, pages and ops not negative")
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer log.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tel.MetricsAddr != "" {
		log.Info("Serving metrics", zap.String("addr", tel.MetricsAddr))
	}

	var store pagestore.PageStore = pagestore.NewDiskManager(cfg.Storage.DataDir, log)
	if *inMemory {
		store = pagestore.NewMemStore()
	}
	pool, err := bufferpool.New(cfg.BufferPool, store,
		bufferpool.WithLogger(log), bufferpool.WithMeter(tel.Meter))
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error("Failed to close buffer pool", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := newWorkload(workloadConfig{
		Tables:        *tables,
		PagesPerTable: *pagesPerTable,
		Ops:           *ops,
		OpsPerSec:     *opsPerSec,
		Seed:          *seed,
	}, pool, tel.Tracer, log)

	start := time.Now()
	if err := w.setup(ctx); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	log.Info("Setup complete", zap.Duration("elapsed", time.Since(start)), zap.String("stats", pool.Stats().String()))
	pool.ResetStats()

	start = time.Now()
	res, err := w.run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("Run stopped early", zap.Error(err))
	}

	fmt.Printf("ops: %d (writes %d, frees %d, allocs %d, failures %d) in %s\n",
		res.Ops, res.Writes, res.Frees, res.Allocs, res.Failures, elapsed.Round(time.Millisecond))
	fmt.Println(res.PoolStats.String())
	return nil
}
