package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// backupChunkSize: size of each read/write chunk during a backup copy.
const backupChunkSize = 1 * 1024 * 1024 // 1 MiB

var backupBufPool = sync.Pool{
	New: func() interface{} { return make([]byte, backupChunkSize) },
}

// BackupFile copies a record file to dstPath, throttled to rateBytesPerSec
// (unlimited when <= 0), and returns the hex sha256 of the bytes copied.
// The caller is expected to have flushed the file's pages first; the copy
// reads whatever is on disk.
func BackupFile(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64) (string, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("%w: opening backup source %s: %v", ErrIO, srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("%w: opening backup destination %s: %v", ErrIO, dstPath, err)
	}
	defer func() {
		_ = dst.Sync()
		_ = dst.Close()
	}()

	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), backupChunkSize)
	}

	sum := sha256.New()
	var off int64
	for {
		buf := backupBufPool.Get().([]byte)
		n, rerr := src.ReadAt(buf[:backupChunkSize], off)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					backupBufPool.Put(buf)
					return "", fmt.Errorf("backup rate limiter: %w", err)
				}
			}
			w := 0
			for w < n {
				m, werr := dst.Write(buf[w:n])
				if werr != nil {
					backupBufPool.Put(buf)
					return "", fmt.Errorf("%w: writing backup chunk: %v", ErrIO, werr)
				}
				w += m
			}
			sum.Write(buf[:n])
			off += int64(n)
		}
		backupBufPool.Put(buf)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return "", fmt.Errorf("%w: reading backup source: %v", ErrIO, rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return "", fmt.Errorf("%w: syncing backup destination: %v", ErrIO, err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
