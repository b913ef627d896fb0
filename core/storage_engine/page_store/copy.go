package pagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	pagemanager "github.com/sushant-115/gojobuf/core/write_engine/page_manager"
	"golang.org/x/time/rate"
)

// copyChunkSize is the size of each read/write chunk: 16 pages.
const copyChunkSize = 16 * pagemanager.PageSize

var copyBufPool = sync.Pool{
	New: func() interface{} { return make([]byte, copyChunkSize) },
}

// CopyTableFileThrottled copies a table file to dstPath, limited to
// bytesPerSec (0 means unlimited). The caller flushes the buffer pool first;
// the copy only sees what is on disk. It returns the number of bytes copied.
func CopyTableFileThrottled(ctx context.Context, srcPath, dstPath string, bytesPerSec int64) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("%w: open src: %v", ErrIO, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: open dst: %v", ErrIO, err)
	}
	defer func() {
		_ = dst.Close()
	}()

	var limiter *rate.Limiter
	if bytesPerSec > 0 {
		burst := copyChunkSize
		if bytesPerSec < int64(burst) {
			burst = int(bytesPerSec)
		}
		limiter = rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	}

	var readOff int64
	for {
		buf := copyBufPool.Get().([]byte)
		n, rerr := src.ReadAt(buf[:copyChunkSize], readOff)
		if n > 0 {
			if limiter != nil {
				if err := waitTokens(ctx, limiter, n); err != nil {
					copyBufPool.Put(buf)
					return readOff, fmt.Errorf("rate limiter error: %w", err)
				}
			}
			if _, werr := dst.WriteAt(buf[:n], readOff); werr != nil {
				copyBufPool.Put(buf)
				return readOff, fmt.Errorf("%w: write error: %v", ErrIO, werr)
			}
			readOff += int64(n)
		}
		copyBufPool.Put(buf)

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return readOff, fmt.Errorf("%w: read error: %v", ErrIO, rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return readOff, fmt.Errorf("%w: sync error: %v", ErrIO, err)
	}
	return readOff, nil
}

// waitTokens consumes n tokens in pieces no larger than the limiter's burst.
func waitTokens(ctx context.Context, limiter *rate.Limiter, n int) error {
	for n > 0 {
		take := n
		if b := limiter.Burst(); take > b {
			take = b
		}
		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}
