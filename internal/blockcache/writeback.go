package blockcache

// writebackSlot issues a single contiguous device write covering
// [firstSet, lastSet] of the slot's dirty bitmap, which may include clean
// sectors between the extremes. A failed write leaves the dirty bitmap
// untouched so a later Flush or eviction can retry.
func (c *Cache) writebackSlot(s *slot) bool {
	if s.dirty.isZero() {
		return true
	}
	first := s.dirty.firstSet()
	last := s.dirty.lastSet()
	span := last - first + 1
	src := s.buffer[first*c.secSize : (first+span)*c.secSize]
	if !c.dev.WriteSectors(s.base+uint64(first), uint64(span), src) {
		return false
	}
	s.dirty = 0
	c.Stats.Writebacks++
	return true
}

// populate writes back s if needed, then rebases and (re)fills it to cover
// sector t. write/n describe the caller's intended write so the
// write-allocate elision rules can skip loads that would be fully
// overwritten. On a read failure the slot is wiped back to FREE (nothing
// was committed, so this is safe); on a writeback failure the slot is left
// exactly as it was.
func (c *Cache) populate(s *slot, t uint64, write bool, n uint64) bool {
	if !c.writebackSlot(s) {
		return false
	}

	pageSize := uint64(c.pageSize)
	newBase := (t / pageSize) * pageSize
	if newBase >= c.endSec {
		return false
	}
	newCount := c.pageSize
	if newBase+uint64(newCount) > c.endSec {
		newCount = int(c.endSec - newBase)
	}
	local := int(t - newBase)

	readLo, readHi := 0, newCount
	elide := false
	if write {
		avail := newCount - local
		wn := int(n)
		if wn > avail {
			wn = avail
		}
		switch {
		case local == 0 && wn == newCount:
			elide = true
		case local == 0 && wn < newCount:
			readLo, readHi = wn, newCount
		case local > 0 && local+wn == newCount:
			readLo, readHi = 0, local
		default:
			readLo, readHi = 0, newCount
		}
	}

	s.base = newBase
	s.count = newCount
	s.dirty = 0

	if !elide {
		span := readHi - readLo
		if span > 0 {
			dst := s.buffer[readLo*c.secSize : readHi*c.secSize]
			if !c.dev.ReadSectors(newBase+uint64(readLo), uint64(span), dst) {
				s.free()
				return false
			}
		}
	}

	s.lastAccess = c.table.nextTick()
	return true
}

// get is the single funnel every access operation calls through: locate a
// hit, or pick and populate a victim on a miss.
func (c *Cache) get(t uint64, write bool, n uint64) (*slot, bool) {
	hit, victim := c.table.locate(t)
	if hit != nil {
		c.Stats.Hits++
		return hit, true
	}
	c.Stats.Misses++
	if victim == nil {
		return nil, false
	}
	if !victim.isFree() {
		c.Stats.Evictions++
	}
	if !c.populate(victim, t, write, n) {
		return nil, false
	}
	return victim, true
}
