// Command gojobuf_cli is an interactive shell over a buffer pool backed by
// table files in a data directory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	pagestore "github.com/sushant-115/gojobuf/core/storage_engine/page_store"
	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
	"github.com/sushant-115/gojobuf/config"
	"github.com/sushant-115/gojobuf/pkg/logger"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file")
	dataDir    = flag.String("data_dir", "", "Directory holding table files (overrides config)")
	numSlots   = flag.Uint("slots", 0, "Number of buffer slots (overrides config)")
	logLevel   = flag.String("log_level", "", "Log level (overrides config)")
)

func main() {
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
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
	if *logLevel != "" {
		cfg.Logger.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer log.Sync()

	store := pagestore.NewDiskManager(cfg.Storage.DataDir, log)
	pool, err := bufferpool.New(cfg.BufferPool, store, bufferpool.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			log.Error("Failed to close buffer pool", zap.Error(err))
		}
	}()

	sh := &shell{
		pool:      pool,
		store:     store,
		backupBPS: int64(cfg.Storage.BackupBytesPerSec),
		out:       os.Stdout,
	}

	// One-shot mode: the arguments form a single command.
	if len(args) > 0 {
		if err := sh.processCommand(args); err != nil && !errors.Is(err, errQuit) {
			return err
		}
		return nil
	}
	return sh.interactive(filepath.Join(cfg.Storage.DataDir, ".gojobuf_history"))
}

func (sh *shell) interactive(historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gojobuf> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to start line editor: %w", err)
	}
	defer rl.Close()
	sh.out = rl.Stdout()

	fmt.Fprintln(sh.out, "gojobuf CLI. Type 'help' for commands, 'exit' or 'quit' to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		err = sh.processCommand(strings.Fields(line))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}
}
