package blockdev

// MemDevice is an in-memory Device, used by tests as a ground-truth
// reference to compare a cache against, and by callers that want a Device
// without a backing file.
type MemDevice struct {
	bytesPerSec  uint64
	totalSectors uint64
	data         []byte

	// FailNextRead/FailNextWrite let tests simulate device failure without a
	// fault-injecting file system; when set, the next ReadSectors or
	// WriteSectors call fails and the flag is cleared.
	FailNextRead  bool
	FailNextWrite bool

	ReadCount  int
	WriteCount int
}

func NewMemDevice(bytesPerSector, totalSectors uint64) *MemDevice {
	return &MemDevice{
		bytesPerSec:  bytesPerSector,
		totalSectors: totalSectors,
		data:         make([]byte, bytesPerSector*totalSectors),
	}
}

func (d *MemDevice) bounds(start, count uint64) (int64, int64, bool) {
	if start+count > d.totalSectors {
		return 0, 0, false
	}
	lo := int64(start * d.bytesPerSec)
	hi := lo + int64(count*d.bytesPerSec)
	return lo, hi, true
}

func (d *MemDevice) ReadSectors(start uint64, count uint64, dst []byte) bool {
	d.ReadCount++
	if d.FailNextRead {
		d.FailNextRead = false
		return false
	}
	if uint64(len(dst)) != count*d.bytesPerSec {
		return false
	}
	lo, hi, ok := d.bounds(start, count)
	if !ok {
		return false
	}
	copy(dst, d.data[lo:hi])
	return true
}

func (d *MemDevice) WriteSectors(start uint64, count uint64, src []byte) bool {
	d.WriteCount++
	if d.FailNextWrite {
		d.FailNextWrite = false
		return false
	}
	if uint64(len(src)) != count*d.bytesPerSec {
		return false
	}
	lo, hi, ok := d.bounds(start, count)
	if !ok {
		return false
	}
	copy(d.data[lo:hi], src)
	return true
}

// Snapshot returns a copy of the full backing store, for test assertions.
func (d *MemDevice) Snapshot() []byte {
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out
}

// SeedSector writes data directly into the device without going through
// WriteSectors, simulating pre-existing disk content a cache has never seen.
func (d *MemDevice) SeedSector(sector uint64, data []byte) {
	off := sector * d.bytesPerSec
	copy(d.data[off:off+uint64(len(data))], data)
}
