package volume

import (
	"encoding/binary"
	"fmt"
)

// headerMagic identifies the 16-byte descriptor header produced by
// WriteHeader; this package does not itself place the header on an image
// (ntfscachetool's init does not write one). It is not any real NTFS boot-sector
// field; it is a minimal stand-in so end_of_partition/bytes_per_sector can
// be recovered from the image itself instead of only from a side-channel
// JSON file.
const headerMagic = uint32(0x4e544643) // "NTFC"

// HeaderSize is the fixed size, in bytes, of the on-image descriptor
// header.
const HeaderSize = 16

// decoder/encoder below are small little-endian read/write primitives,
// kept minimal since this header only ever needs u32 fields.

type decoder struct {
	b []byte
	o int
}

func (d *decoder) readU32() (uint32, error) {
	if len(d.b)-d.o < 4 {
		return 0, fmt.Errorf("need 4 bytes")
	}
	v := binary.LittleEndian.Uint32(d.b[d.o : d.o+4])
	d.o += 4
	return v, nil
}

type encoder struct {
	b []byte
}

func (e *encoder) writeU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.b = append(e.b, tmp[:]...)
}

// ReadHeader parses a HeaderSize-byte on-image descriptor header.
func ReadHeader(buf []byte) (bytesPerSector int, endOfPartition uint64, err error) {
	if len(buf) < HeaderSize {
		return 0, 0, fmt.Errorf("header requires %d bytes, got %d", HeaderSize, len(buf))
	}
	d := &decoder{b: buf}
	magic, _ := d.readU32()
	if magic != headerMagic {
		return 0, 0, fmt.Errorf("bad header magic 0x%08x", magic)
	}
	bps, _ := d.readU32()
	endLo, _ := d.readU32()
	endHi, _ := d.readU32()
	end := uint64(endHi)<<32 | uint64(endLo)
	return int(bps), end, nil
}

// WriteHeader serializes a HeaderSize-byte on-image descriptor header.
func WriteHeader(bytesPerSector int, endOfPartition uint64) []byte {
	e := &encoder{b: make([]byte, 0, HeaderSize)}
	e.writeU32(headerMagic)
	e.writeU32(uint32(bytesPerSector))
	e.writeU32(uint32(endOfPartition))
	e.writeU32(uint32(endOfPartition >> 32))
	return e.b
}
