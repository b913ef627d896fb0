package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	pagestore "github.com/sushant-115/gojobuf/core/storage_engine/page_store"
	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
)

var errQuit = errors.New("quit")

// shell runs commands against one buffer pool. Slots returned by get and
// alloc stay pinned until the user unpins them.
type shell struct {
	pool      *bufferpool.BufferPool
	store     *pagestore.DiskManager
	backupBPS int64
	out       io.Writer
}

const helpText = `Commands:
  open <path>                    open or create a table file, prints its id
  get <table> <page>             load and pin a page
  alloc <table>                  allocate a page (returned pinned)
  free <table> <page>            put a page on the table's free list
  unpin <table> <page>           release one pin
  dirty <table> <page>           mark a cached page dirty
  write <table> <page> <text>    store text at the start of a page
  read <table> <page>            print the text stored in a page
  flush                          write back every dirty page
  slots                          list the buffer slots
  stats                          print buffer statistics
  backup <path> <dst> [bytes/s]  flush, then copy a table file
  help
  exit / quit`

// processCommand executes one command line. It returns errQuit on exit.
func (sh *shell) processCommand(args []string) error {
	if len(args) == 0 {
		return nil
	}

	switch cmd := strings.ToLower(args[0]); cmd {
	case "open":
		if len(args) != 2 {
			return usage("open <path>")
		}
		tableID, err := sh.pool.OpenTable(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "table %d\n", tableID)

	case "get":
		tableID, pageNum, err := parsePageArgs(args, "get <table> <page>")
		if err != nil {
			return err
		}
		s, err := sh.pool.GetBuffer(tableID, pageNum)
		if err != nil {
			return err
		}
		sh.printSlot(s)

	case "alloc":
		if len(args) != 2 {
			return usage("alloc <table>")
		}
		tableID, err := parseTable(args[1])
		if err != nil {
			return err
		}
		s, err := sh.pool.AllocatePage(tableID)
		if err != nil {
			return err
		}
		sh.printSlot(s)

	case "free":
		tableID, pageNum, err := parsePageArgs(args, "free <table> <page>")
		if err != nil {
			return err
		}
		s, err := sh.pool.GetBuffer(tableID, pageNum)
		if err != nil {
			return err
		}
		defer sh.pool.Unpin(s)
		if err := sh.pool.FreePage(tableID, s); err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "freed page %d\n", pageNum)

	case "unpin", "dirty":
		tableID, pageNum, err := parsePageArgs(args, cmd+" <table> <page>")
		if err != nil {
			return err
		}
		s, ok := sh.pool.Lookup(tableID, pageNum)
		if !ok {
			return fmt.Errorf("page %d of table %d is not cached", pageNum, tableID)
		}
		if cmd == "unpin" {
			sh.pool.Unpin(s)
		} else {
			sh.pool.MarkDirty(s)
		}
		sh.printSlot(s)

	case "write":
		if len(args) < 4 {
			return usage("write <table> <page> <text>")
		}
		tableID, pageNum, err := parsePageArgs(args[:3], "write <table> <page> <text>")
		if err != nil {
			return err
		}
		if pageNum == pagemanager.HeaderPageNum {
			return fmt.Errorf("page %d is the table header and cannot be written", pageNum)
		}
		text := strings.Join(args[3:], " ")
		if len(text) >= pagemanager.PageSize {
			return fmt.Errorf("text is %d bytes, a page holds %d", len(text), pagemanager.PageSize-1)
		}
		s, err := sh.pool.GetBuffer(tableID, pageNum)
		if err != nil {
			return err
		}
		defer sh.pool.Unpin(s)
		data := s.Data()
		clear(data)
		copy(data, text)
		sh.pool.MarkDirty(s)
		fmt.Fprintf(sh.out, "wrote %d bytes to page %d\n", len(text), pageNum)

	case "read":
		tableID, pageNum, err := parsePageArgs(args, "read <table> <page>")
		if err != nil {
			return err
		}
		s, err := sh.pool.GetBuffer(tableID, pageNum)
		if err != nil {
			return err
		}
		defer sh.pool.Unpin(s)
		data := s.Data()
		if end := bytes.IndexByte(data, 0); end >= 0 {
			data = data[:end]
		}
		fmt.Fprintf(sh.out, "%q\n", data)

	case "flush":
		if err := sh.pool.FlushAll(); err != nil {
			return err
		}
		fmt.Fprintln(sh.out, "flushed")

	case "slots":
		for _, info := range sh.pool.Slots() {
			if !info.Bound() {
				fmt.Fprintf(sh.out, "slot %d: free\n", info.Index)
				continue
			}
			fmt.Fprintf(sh.out, "slot %d: table %d page %d pins %d usage %d dirty %t\n",
				info.Index, info.TableID, info.PageNum, info.PinCount, info.UsageCount, info.Dirty)
		}

	case "stats":
		fmt.Fprintln(sh.out, sh.pool.Stats().String())

	case "backup":
		if len(args) != 3 && len(args) != 4 {
			return usage("backup <path> <dst> [bytes/s]")
		}
		bps := sh.backupBPS
		if len(args) == 4 {
			v, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil || v < 0 {
				return fmt.Errorf("invalid rate %q", args[3])
			}
			bps = v
		}
		if err := sh.pool.FlushAll(); err != nil {
			return err
		}
		n, err := pagestore.CopyTableFileThrottled(context.Background(), sh.store.ResolvePath(args[1]), args[2], bps)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "copied %d bytes to %s\n", n, args[2])

	case "help":
		fmt.Fprintln(sh.out, helpText)

	case "exit", "quit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, type 'help' for a list of commands", args[0])
	}
	return nil
}

func (sh *shell) printSlot(s *bufferpool.Slot) {
	fmt.Fprintf(sh.out, "table %d page %d in slot %d (pins %d, dirty %t)\n",
		s.TableID(), s.PageNum(), s.Index(), s.PinCount(), s.IsDirty())
}

func usage(form string) error {
	return fmt.Errorf("usage: %s", form)
}

func parseTable(arg string) (pagemanager.TableID, error) {
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || v < 0 {
		return pagemanager.InvalidTableID, fmt.Errorf("invalid table id %q", arg)
	}
	return pagemanager.TableID(v), nil
}

func parsePageArgs(args []string, form string) (pagemanager.TableID, pagemanager.PageNum, error) {
	if len(args) != 3 {
		return 0, 0, usage(form)
	}
	tableID, err := parseTable(args[1])
	if err != nil {
		return 0, 0, err
	}
	p, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page number %q", args[2])
	}
	return tableID, pagemanager.PageNum(p), nil
}
