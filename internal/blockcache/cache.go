// Package blockcache implements a sector/page block cache: a small set of
// LRU page slots sitting between a block device and its caller, absorbing
// partial-sector reads, coalescing writes, and bypassing itself for
// aligned bulk transfers.
//
// The cache is not internally synchronized: callers must serialize access
// themselves, the same way a server wrapping it would guard the cache with
// its own mutex rather than push locking down into this package.
package blockcache

import (
	"ntfscache/internal/blockdev"
)

const (
	minPageCount  = 4
	minPageSize   = 32
	maxPageSize   = 64
	minSectorSize = 1
)

// Cache is a fixed-size, LRU-managed sector/page cache over a block device.
type Cache struct {
	table    *pageTable
	dev      blockdev.Device
	endSec   uint64 // end_of_partition, exclusive sector bound
	pageSize int    // S: sectors per page
	secSize  int    // B: bytes per sector

	// Stats are plain in-process counters, purely observational.
	Stats Stats
}

// Stats are cumulative counters over the cache's lifetime.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	Bypasses   uint64
}

// New constructs a cache:
//   - pageCount and sectorsPerPage of zero (before clamping) are
//     rejected outright;
//   - pageCount is then clamped up to at least 4;
//   - sectorsPerPage is clamped into [32, 64].
func New(pageCount, sectorsPerPage int, dev blockdev.Device, endOfPartition uint64, bytesPerSector int) (*Cache, error) {
	if pageCount == 0 || sectorsPerPage == 0 {
		return nil, newError(ErrPrecondition, "page_count and sectors_per_page must be non-zero")
	}
	if dev == nil {
		return nil, newError(ErrPrecondition, "nil block device")
	}
	if bytesPerSector < minSectorSize {
		return nil, newError(ErrPrecondition, "bytes_per_sector must be positive")
	}

	if pageCount < minPageCount {
		pageCount = minPageCount
	}
	if sectorsPerPage < minPageSize {
		sectorsPerPage = minPageSize
	} else if sectorsPerPage > maxPageSize {
		sectorsPerPage = maxPageSize
	}

	c := &Cache{
		dev:      dev,
		endSec:   endOfPartition,
		pageSize: sectorsPerPage,
		secSize:  bytesPerSector,
	}
	c.table = newPageTable(pageCount, sectorsPerPage*bytesPerSector)
	return c, nil
}

// Close flushes and releases the cache's buffers. Close itself best-effort
// flushes but ignores failures; a caller that needs to know whether the
// flush succeeded should call Flush or Invalidate explicitly first.
func (c *Cache) Close() {
	_ = c.Flush()
	for _, s := range c.table.slots {
		s.buffer = nil
	}
}

// PageSize returns S, the sectors-per-page granularity in effect (after
// clamping).
func (c *Cache) PageSize() int { return c.pageSize }

// SectorSize returns B, the bytes-per-sector granularity.
func (c *Cache) SectorSize() int { return c.secSize }
