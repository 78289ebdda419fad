package blockcache

import (
	"encoding/binary"

	"ntfscache/internal/alloc"
)

// bypassCount reports how many sectors starting at page-aligned t may go
// straight to the device without touching the cache, given the caller
// already confirmed alignment.
func (c *Cache) bypassCount(t, n uint64) uint64 {
	s, found := c.table.findIntersecting(t, n)
	if !found {
		// Whole pages only, never bypass a partial trailing page.
		return (n / uint64(c.pageSize)) * uint64(c.pageSize)
	}
	if s.base > t {
		return s.base - t
	}
	return 0
}

func (c *Cache) bypassEligible(t uint64, buf []byte) bool {
	return t%uint64(c.pageSize) == 0 && alloc.IsAligned(buf, alloc.MinAlign)
}

// ReadSectors reads n sectors starting at t into dst, bypassing the cache
// for aligned, page-aligned bulk transfers and falling back to the cached
// path sector range by sector range.
func (c *Cache) ReadSectors(t uint64, n uint64, dst []byte) bool {
	if uint64(len(dst)) != n*uint64(c.secSize) {
		return false
	}
	off := 0
	for n > 0 {
		if c.bypassEligible(t, dst[off:]) {
			if m := c.bypassCount(t, n); m > 0 {
				size := int(m) * c.secSize
				if !c.dev.ReadSectors(t, m, dst[off:off+size]) {
					return false
				}
				c.Stats.Bypasses++
				t += m
				n -= m
				off += size
				continue
			}
		}

		s, ok := c.get(t, false, n)
		if !ok {
			return false
		}
		local := t - s.base
		avail := uint64(s.count) - local
		cnt := n
		if cnt > avail {
			cnt = avail
		}
		size := int(cnt) * c.secSize
		srcOff := int(local) * c.secSize
		copy(dst[off:off+size], s.buffer[srcOff:srcOff+size])
		t += cnt
		n -= cnt
		off += size
	}
	return true
}

// WriteSectors writes n sectors starting at t from src, with the same
// bypass eligibility as ReadSectors; the cached branch marks the written
// sectors dirty.
func (c *Cache) WriteSectors(t uint64, n uint64, src []byte) bool {
	if uint64(len(src)) != n*uint64(c.secSize) {
		return false
	}
	off := 0
	for n > 0 {
		if c.bypassEligible(t, src[off:]) {
			if m := c.bypassCount(t, n); m > 0 {
				size := int(m) * c.secSize
				if !c.dev.WriteSectors(t, m, src[off:off+size]) {
					return false
				}
				c.Stats.Bypasses++
				t += m
				n -= m
				off += size
				continue
			}
		}

		s, ok := c.get(t, true, n)
		if !ok {
			return false
		}
		local := t - s.base
		avail := uint64(s.count) - local
		cnt := n
		if cnt > avail {
			cnt = avail
		}
		size := int(cnt) * c.secSize
		dstOff := int(local) * c.secSize
		copy(s.buffer[dstOff:dstOff+size], src[off:off+size])
		s.dirty = s.dirty.setRange(int(local), int(cnt))
		t += cnt
		n -= cnt
		off += size
	}
	return true
}

// ReadPartial copies size bytes at offset within sector t into dst.
func (c *Cache) ReadPartial(dst []byte, t uint64, offset, size int) bool {
	if offset < 0 || size < 0 || offset+size > c.secSize || len(dst) < size {
		return false
	}
	s, ok := c.get(t, false, 1)
	if !ok {
		return false
	}
	local := int(t - s.base)
	srcOff := local*c.secSize + offset
	copy(dst[:size], s.buffer[srcOff:srcOff+size])
	return true
}

// WritePartial overwrites size bytes at offset within sector t with src.
// The page must be fully valid first since the surrounding bytes are
// preserved, hence write=false on the underlying get.
func (c *Cache) WritePartial(src []byte, t uint64, offset, size int) bool {
	if offset < 0 || size < 0 || offset+size > c.secSize || len(src) < size {
		return false
	}
	s, ok := c.get(t, false, 1)
	if !ok {
		return false
	}
	local := int(t - s.base)
	dstOff := local*c.secSize + offset
	copy(s.buffer[dstOff:dstOff+size], src[:size])
	s.dirty = s.dirty.setBit(local)
	return true
}

// EraseWritePartial zeroes sector t in full, then overwrites size bytes
// at offset with src. The sector is about to be fully overwritten so no
// pre-load is needed (write=true).
func (c *Cache) EraseWritePartial(src []byte, t uint64, offset, size int) bool {
	if offset < 0 || size < 0 || offset+size > c.secSize || len(src) < size {
		return false
	}
	s, ok := c.get(t, true, 1)
	if !ok {
		return false
	}
	local := int(t - s.base)
	base := local * c.secSize
	clear(s.buffer[base : base+c.secSize])
	copy(s.buffer[base+offset:base+offset+size], src[:size])
	s.dirty = s.dirty.setBit(local)
	return true
}

// ReadLE reads a little-endian integer of width 1, 2, or 4 bytes at
// offset within sector t into *v.
func (c *Cache) ReadLE(t uint64, offset int, width int, v *uint32) bool {
	if width != 1 && width != 2 && width != 4 {
		return false
	}
	var buf [4]byte
	if !c.ReadPartial(buf[:width], t, offset, width) {
		return false
	}
	switch width {
	case 1:
		*v = uint32(buf[0])
	case 2:
		*v = uint32(binary.LittleEndian.Uint16(buf[:2]))
	default:
		*v = binary.LittleEndian.Uint32(buf[:4])
	}
	return true
}

// WriteLE writes v as a little-endian integer of width 1, 2, or 4 bytes
// at offset within sector t.
func (c *Cache) WriteLE(t uint64, offset int, width int, v uint32) bool {
	if width != 1 && width != 2 && width != 4 {
		return false
	}
	var buf [4]byte
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(buf[:2], uint16(v))
	default:
		binary.LittleEndian.PutUint32(buf[:4], v)
	}
	return c.WritePartial(buf[:width], t, offset, width)
}

// Flush writes back every dirty slot, stopping at (and leaving dirty) the
// first failure.
func (c *Cache) Flush() bool {
	for _, s := range c.table.slots {
		if s.dirty.isZero() {
			continue
		}
		if !c.writebackSlot(s) {
			return false
		}
	}
	return true
}

// Invalidate flushes, then resets every slot to FREE regardless of whether
// the flush fully succeeded. The return value reports whether the
// preceding flush succeeded, so a caller that cares can tell the two cases
// apart even though the discard happens either way.
func (c *Cache) Invalidate() bool {
	ok := c.Flush()
	for _, s := range c.table.slots {
		s.free()
	}
	return ok
}
