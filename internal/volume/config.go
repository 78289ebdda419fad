// Package volume parametrizes a blockcache.Cache: it loads the
// page_count/sectors_per_page/bytes_per_sector/end_of_partition values the
// cache's constructor needs from a side-channel JSON file, and it encodes and
// parses a tiny on-image header so bytes_per_sector and end_of_partition
// (not page_count or sectors_per_page) can also be recovered straight from
// a disk image, the way a real NTFS driver would derive them from the
// volume's own boot sector rather than an out-of-band file.
package volume

import (
	"encoding/json"
	"fmt"
	"os"
)

// Descriptor holds everything needed to open a cache over an image file.
type Descriptor struct {
	ImagePath      string `json:"image_path"`
	PageCount      int    `json:"page_count"`
	SectorsPerPage int    `json:"sectors_per_page"`
	BytesPerSector int    `json:"bytes_per_sector"`
	EndOfPartition uint64 `json:"end_of_partition"`
}

// Default values applied by Load when the JSON file omits a field: fill
// in sane defaults after unmarshalling rather than requiring every field.
const (
	DefaultPageCount      = 8
	DefaultSectorsPerPage = 32
	DefaultBytesPerSector = 512
)

// Load reads and parses a volume descriptor from path, applying defaults
// for zero-valued fields.
func Load(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse %s: %w", path, err)
	}
	d.applyDefaults()
	if d.ImagePath == "" {
		return Descriptor{}, fmt.Errorf("%s: image_path is required", path)
	}
	return d, nil
}

// Save writes d to path as indented JSON, atomically (see writeFileAtomic).
func Save(path string, d Descriptor) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, raw, 0o644)
}

func (d *Descriptor) applyDefaults() {
	if d.PageCount == 0 {
		d.PageCount = DefaultPageCount
	}
	if d.SectorsPerPage == 0 {
		d.SectorsPerPage = DefaultSectorsPerPage
	}
	if d.BytesPerSector == 0 {
		d.BytesPerSector = DefaultBytesPerSector
	}
	if d.EndOfPartition == 0 {
		d.EndOfPartition = uint64(d.PageCount * d.SectorsPerPage * 4)
	}
}
