package blockcache

// locate scans the page table in a single pass: a hit returns immediately
// (stamped with the next tick), a miss falls through having tracked the
// victim along the way.
//
// Victim selection: a FREE slot always outranks any non-FREE slot
// regardless of tick value (FREE is "older than anything"); among
// non-FREE candidates the smallest last_access wins; ties go to the
// earliest index encountered, which falls out of using a strict "<"
// comparison while scanning forward.
func (pt *pageTable) locate(t uint64) (hit *slot, victim *slot) {
	var victimIdx = -1
	for i, s := range pt.slots {
		if !s.isFree() && s.contains(t) {
			s.lastAccess = pt.nextTick()
			return s, nil
		}
		if victimIdx == -1 {
			victimIdx = i
			continue
		}
		cur := pt.slots[victimIdx]
		if betterVictim(s, cur) {
			victimIdx = i
		}
	}
	if victimIdx >= 0 {
		victim = pt.slots[victimIdx]
	}
	return nil, victim
}

// betterVictim reports whether candidate is a strictly better eviction
// choice than incumbent: FREE beats non-FREE unconditionally, otherwise
// smaller last_access wins.
func betterVictim(candidate, incumbent *slot) bool {
	if candidate.isFree() && !incumbent.isFree() {
		return true
	}
	if !candidate.isFree() && incumbent.isFree() {
		return false
	}
	if candidate.isFree() && incumbent.isFree() {
		return false // keep earliest index (tie-break), incumbent already is earlier
	}
	return candidate.lastAccess < incumbent.lastAccess
}

// findIntersecting returns the non-FREE slot intersecting [t, t+n) with
// the smallest base sector, if any.
func (pt *pageTable) findIntersecting(t, n uint64) (*slot, bool) {
	var best *slot
	for _, s := range pt.slots {
		if !s.intersects(t, n) {
			continue
		}
		if best == nil || s.base < best.base {
			best = s
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
