package blockdev

import (
	"os"
)

// FileDevice is a Device backed by a plain file, addressed in fixed-size
// sectors: compute the byte offset through sectorOff, then ReadAt/WriteAt.
type FileDevice struct {
	f            *os.File
	bytesPerSec  uint64
	totalSectors uint64
}

// OpenFileDevice opens (or creates) path as a block device of totalSectors
// sectors of bytesPerSector bytes each. If the file is smaller than the
// requested size it is extended (sparse) to fit.
func OpenFileDevice(path string, bytesPerSector, totalSectors uint64) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(bytesPerSector * totalSectors)
	if fi, err := f.Stat(); err == nil && fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileDevice{f: f, bytesPerSec: bytesPerSector, totalSectors: totalSectors}, nil
}

func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) sectorOff(start uint64) (int64, bool) {
	if start > d.totalSectors {
		return 0, false
	}
	return int64(start * d.bytesPerSec), true
}

func (d *FileDevice) ReadSectors(start uint64, count uint64, dst []byte) bool {
	if uint64(len(dst)) != count*d.bytesPerSec {
		return false
	}
	if start+count > d.totalSectors {
		return false
	}
	off, ok := d.sectorOff(start)
	if !ok {
		return false
	}
	_, err := d.f.ReadAt(dst, off)
	return err == nil
}

func (d *FileDevice) WriteSectors(start uint64, count uint64, src []byte) bool {
	if uint64(len(src)) != count*d.bytesPerSec {
		return false
	}
	if start+count > d.totalSectors {
		return false
	}
	off, ok := d.sectorOff(start)
	if !ok {
		return false
	}
	if _, err := d.f.WriteAt(src, off); err != nil {
		return false
	}
	// Sync before trusting the write landed.
	return d.f.Sync() == nil
}
