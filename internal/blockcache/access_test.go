package blockcache

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"ntfscache/internal/alloc"
	"ntfscache/internal/blockdev"
)

// Scenario 1: cold read miss issues exactly one 32-sector device read and
// returns the disk content.
func TestScenario1ColdReadMiss(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	seed := make([]byte, 512)
	seed[0] = 0x42
	dev.SeedSector(0, seed)

	dst := make([]byte, 512)
	require.True(t, c.ReadSectors(0, 1, dst))
	require.Equal(t, seed, dst)
	require.Equal(t, 1, dev.ReadCount)

	s, hit := c.table.find0or1(0)
	require.True(t, hit)
	require.Equal(t, uint64(0), s.base)
	require.Equal(t, 32, s.count)
	require.True(t, s.dirty.isZero())
}

// find0or1 is a tiny test-only helper: a non-mutating hit check (unlike
// locate, which stamps the tick), so assertions don't perturb LRU state.
func (pt *pageTable) find0or1(t uint64) (*slot, bool) {
	for _, s := range pt.slots {
		if !s.isFree() && s.contains(t) {
			return s, true
		}
	}
	return nil, false
}

// Scenario 2: a 32-byte-aligned, page-aligned, whole-page write bypasses
// the cache entirely: one device write, no read, cache state unchanged.
func TestScenario2WriteAllocateFullPageBypasses(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	src := alloc.AlignedBuffer(32*512, alloc.MinAlign)
	for i := range src {
		src[i] = byte(i)
	}

	require.True(t, c.WriteSectors(64, 32, src))
	require.Equal(t, 1, dev.WriteCount)
	require.Equal(t, 0, dev.ReadCount)
	require.Equal(t, uint64(1), c.Stats.Bypasses)

	for _, s := range c.table.slots {
		require.True(t, s.isFree())
	}

	got := make([]byte, 32*512)
	require.True(t, dev.ReadSectors(64, 32, got))
	require.Equal(t, src, got)
}

// Scenario 3: an aligned write shorter than a page falls through the
// bypass probe (m=0) into the cached path, eliding the prefix the caller
// is about to overwrite.
func TestScenario3WriteAllocatePartialPageElidesPrefix(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	src := alloc.AlignedBuffer(8*512, alloc.MinAlign)
	for i := range src {
		src[i] = 0x11
	}

	require.True(t, c.WriteSectors(0, 8, src))
	require.Equal(t, 0, dev.WriteCount)
	require.Equal(t, 1, dev.ReadCount) // read covering [8,32)

	s, hit := c.table.find0or1(0)
	require.True(t, hit)
	require.Equal(t, dirtyBitmap(0x000000FF), s.dirty)
}

// Scenario 5: dirty sectors at slot offsets 2 and 29 are flushed as one
// contiguous 28-sector write covering [base+2, base+29].
func TestScenario5DirtyEvictionContiguity(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	dst := make([]byte, 512)
	// Fill all four slots with distinct pages.
	for _, sector := range []uint64{0, 32, 64, 96} {
		require.True(t, c.ReadSectors(sector, 1, dst))
	}

	src := make([]byte, 512)
	// Dirtying sector 2 and 29 (both inside the page containing sector 0)
	// is itself a hit, which bumps that page's tick to "most recently
	// used". Re-touch the other three pages afterwards so the dirtied
	// page becomes least-recently-used again, and is the one evicted next.
	require.True(t, c.WritePartial(src, 2, 0, 512))
	require.True(t, c.WritePartial(src, 29, 0, 512))
	for _, sector := range []uint64{32, 64, 96} {
		require.True(t, c.ReadSectors(sector, 1, dst))
	}

	writesBefore := dev.WriteCount
	require.True(t, c.ReadSectors(128, 1, dst))

	require.Equal(t, writesBefore+1, dev.WriteCount)
}

// Scenario 6: flush stops at the first failing writeback; later slots are
// left untouched (still dirty, original bitmap).
func TestScenario6FlushFailurePreservesDirty(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	dst := make([]byte, 512)
	require.True(t, c.ReadSectors(0, 1, dst))
	require.True(t, c.ReadSectors(32, 1, dst))

	src := make([]byte, 512)
	require.True(t, c.WritePartial(src, 0, 0, 512))
	require.True(t, c.WritePartial(src, 32, 0, 512))

	dev.FailNextWrite = true
	require.False(t, c.Flush())

	first, _ := c.table.find0or1(0)
	require.False(t, first.dirty.isZero())

	second, _ := c.table.find0or1(32)
	require.False(t, second.dirty.isZero())
}

func TestReadWritePartial(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	payload := []byte("hello")
	require.True(t, c.WritePartial(payload, 5, 100, len(payload)))

	got := make([]byte, len(payload))
	require.True(t, c.ReadPartial(got, 5, 100, len(payload)))
	require.Equal(t, payload, got)
}

// Property P5: reading a sector's bytes back and writing the identical
// bytes back through WritePartial is a no-op on disk once flushed.
func TestPropertyReadWritebackRoundTripIsNoOpOnDisk(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	seed := make([]byte, 512)
	for i := range seed {
		seed[i] = byte(i % 251)
	}
	dev.SeedSector(5, seed)
	before := dev.Snapshot()

	buf := make([]byte, 512)
	require.True(t, c.ReadPartial(buf, 5, 0, 512))
	require.True(t, c.WritePartial(buf, 5, 0, 512))
	require.True(t, c.Flush())

	require.Equal(t, before, dev.Snapshot())
}

func TestPartialRejectsOutOfBounds(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	buf := make([]byte, 8)
	require.False(t, c.ReadPartial(buf, 0, 510, 8)) // 510+8 > 512
	require.False(t, c.WritePartial(buf, 0, 510, 8))
}

func TestEraseWritePartialZeroesSector(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	full := make([]byte, 512)
	for i := range full {
		full[i] = 0xFF
	}
	require.True(t, c.WritePartial(full, 1, 0, 512))

	patch := []byte{0xAA, 0xBB}
	require.True(t, c.EraseWritePartial(patch, 1, 4, 2))

	got := make([]byte, 512)
	require.True(t, c.ReadPartial(got, 1, 0, 512))
	require.Equal(t, byte(0), got[0])
	require.Equal(t, byte(0xAA), got[4])
	require.Equal(t, byte(0xBB), got[5])
	require.Equal(t, byte(0), got[6])
}

func TestReadWriteLE(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)

	require.True(t, c.WriteLE(0, 10, 1, 0x7F))
	var v1 uint32
	require.True(t, c.ReadLE(0, 10, 1, &v1))
	require.Equal(t, uint32(0x7F), v1)

	require.True(t, c.WriteLE(0, 20, 2, 0xBEEF))
	var v2 uint32
	require.True(t, c.ReadLE(0, 20, 2, &v2))
	require.Equal(t, uint32(0xBEEF), v2)

	require.True(t, c.WriteLE(0, 30, 4, 0xDEADBEEF))
	var v4 uint32
	require.True(t, c.ReadLE(0, 30, 4, &v4))
	require.Equal(t, uint32(0xDEADBEEF), v4)
}

func TestReadWriteLERejectsBadWidth(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	var v uint32
	require.False(t, c.ReadLE(0, 0, 3, &v))
	require.False(t, c.WriteLE(0, 0, 3, 1))
}

// Property P3: a writeback only ever happens as part of evicting a dirty
// slot or an explicit Flush; the writeback count never exceeds evictions
// plus the dirty slots an explicit Flush had to write.
func TestPropertyWritebackCountBoundByEvictionsAndFlushes(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	dst := make([]byte, 512)
	for _, sector := range []uint64{0, 32, 64, 96} {
		require.True(t, c.ReadSectors(sector, 1, dst))
	}
	require.Equal(t, uint64(0), c.Stats.Evictions)
	require.Equal(t, uint64(0), c.Stats.Writebacks)

	src := make([]byte, 512)
	require.True(t, c.WritePartial(src, 0, 0, 512))
	for _, sector := range []uint64{32, 64, 96} {
		require.True(t, c.ReadSectors(sector, 1, dst))
	}

	// Evicting the now-LRU, dirty page at sector 0 forces one writeback.
	require.True(t, c.ReadSectors(128, 1, dst))
	require.Equal(t, uint64(1), c.Stats.Evictions)
	require.Equal(t, uint64(1), c.Stats.Writebacks)

	// Dirty two resident pages and flush explicitly: exactly those two
	// slots writeback, for a total of evictions(1) + flushed(2).
	require.True(t, c.WritePartial(src, 32, 0, 512))
	require.True(t, c.WritePartial(src, 64, 0, 512))
	require.True(t, c.Flush())

	require.LessOrEqual(t, c.Stats.Writebacks, c.Stats.Evictions+2)
	require.Equal(t, uint64(3), c.Stats.Writebacks)
}

func TestInvalidateDiscardsDirtyAfterFlushFailure(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	dst := make([]byte, 512)
	require.True(t, c.ReadSectors(0, 1, dst))

	src := make([]byte, 512)
	require.True(t, c.WritePartial(src, 0, 0, 512))

	dev.FailNextWrite = true
	require.False(t, c.Invalidate())

	for _, s := range c.table.slots {
		require.True(t, s.isFree())
	}
}

// Property P6: a bulk transfer fully disjoint from any cached page, sized
// as a whole number of pages, issues exactly one device call.
func TestBulkTransferDisjointFromCacheIsOneDeviceCall(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096)
	dst := make([]byte, 512)
	require.True(t, c.ReadSectors(0, 1, dst)) // populate a page so the cache isn't empty

	buf := alloc.AlignedBuffer(3*32*512, alloc.MinAlign)
	before := dev.ReadCount
	require.True(t, c.ReadSectors(64, 3*32, buf))
	require.Equal(t, before+1, dev.ReadCount)
}

func TestReadSectorsRejectsWrongBufferLength(t *testing.T) {
	c, _ := newTestCache(t, 4, 32, 512, 4096)
	require.False(t, c.ReadSectors(0, 2, make([]byte, 512)))
}

// Property P1 (reference model): after a final Flush, every sector the
// cache has touched reads back identical to a reference direct-I/O model
// fed the same write sequence.
func TestPropertyMatchesReferenceModelAfterFlush(t *testing.T) {
	const (
		bps = 512
		end = 4096
	)
	cacheDev := blockdev.NewMemDevice(bps, end)
	refDev := blockdev.NewMemDevice(bps, end)

	c, err := New(4, 32, cacheDev, end, bps)
	require.NoError(t, err)

	writes := []struct {
		sector uint64
		data   []byte
	}{
		{10, repeat(0x11, bps)},
		{10, repeat(0x22, bps)},
		{2000, repeat(0x33, bps)},
		{11, repeat(0x44, bps)},
		{4095, repeat(0x55, bps)},
		{500, repeat(0x66, bps)},
	}

	for _, w := range writes {
		require.True(t, c.WritePartial(w.data, w.sector, 0, bps))
		require.True(t, refDev.WriteSectors(w.sector, 1, w.data))
	}

	require.True(t, c.Flush())
	if diff := cmp.Diff(refDev.Snapshot(), cacheDev.Snapshot()); diff != "" {
		t.Fatalf("cache content diverged from reference model (-want +got):\n%s", diff)
	}
}

func repeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

// The last page of a partition may be short; the cache must still serve
// it and never read past the end of the partition.
func TestTailPageIsShort(t *testing.T) {
	c, dev := newTestCache(t, 4, 32, 512, 4096+10) // last page only has 10 sectors

	dst := make([]byte, 10*512)
	require.True(t, c.ReadSectors(4096, 10, dst))

	s, hit := c.table.find0or1(4096)
	require.True(t, hit)
	require.Equal(t, 10, s.count)
	require.Equal(t, 1, dev.ReadCount)
}
