// Command ntfscachetool is a small harness exercising blockcache.Cache
// directly against a raw image file: a flag-parsed, subcommand-dispatched
// CLI with no framework beyond the standard library.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"ntfscache/internal/blockcache"
	"ntfscache/internal/blockdev"
	"ntfscache/internal/version"
	"ntfscache/internal/volume"
)

func main() {
	var descPath string
	var showVersion bool
	flag.StringVar(&descPath, "config", "volume.json", "Path to the volume descriptor JSON file")
	flag.BoolVar(&showVersion, "version", false, "Print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Get().String())
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "version":
		fmt.Println(version.Get().String())
		return
	case "init":
		if err := runInit(descPath, args[1:]); err != nil {
			log.Fatalf("init: %v", err)
		}
		return
	}

	desc, err := volume.Load(descPath)
	if err != nil {
		log.Fatalf("load descriptor %q: %v", descPath, err)
	}

	dev, err := blockdev.OpenFileDevice(desc.ImagePath, uint64(desc.BytesPerSector), desc.EndOfPartition)
	if err != nil {
		log.Fatalf("open image %q: %v", desc.ImagePath, err)
	}
	defer dev.Close()

	cache, err := blockcache.New(desc.PageCount, desc.SectorsPerPage, dev, desc.EndOfPartition, desc.BytesPerSector)
	if err != nil {
		log.Fatalf("new cache: %v", err)
	}
	defer cache.Close()

	switch cmd {
	case "read":
		err = runRead(cache, args[1:])
	case "write":
		err = runWrite(cache, args[1:])
	case "flush":
		if !cache.Flush() {
			err = fmt.Errorf("flush failed, some sectors remain dirty")
		}
	case "invalidate":
		if !cache.Invalidate() {
			err = fmt.Errorf("underlying flush failed; dirty data was discarded anyway")
		}
	case "stats":
		printStats(cache)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ntfscachetool [-config volume.json] <command> [args]

Commands:
  init <image> <pages> <sectors_per_page> <bytes_per_sector> <end_sector>
      Create a volume descriptor and a zero-filled backing image.
  read <sector> <count>
      Read count sectors starting at sector, print as hex.
  write <sector> <hex>
      Write the hex-decoded bytes starting at sector (must be a whole
      number of sectors).
  flush
      Flush all dirty slots to the image.
  invalidate
      Flush then discard all cached slots.
  stats
      Print hit/miss/eviction/writeback/bypass counters for this run.
  version
      Print version information.`)
}

func runInit(descPath string, args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: init <image> <pages> <sectors_per_page> <bytes_per_sector> <end_sector>")
	}
	image := args[0]
	pages, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("pages: %w", err)
	}
	spp, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("sectors_per_page: %w", err)
	}
	bps, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("bytes_per_sector: %w", err)
	}
	end, err := strconv.ParseUint(args[4], 10, 64)
	if err != nil {
		return fmt.Errorf("end_sector: %w", err)
	}

	desc := volume.Descriptor{
		ImagePath:      image,
		PageCount:      pages,
		SectorsPerPage: spp,
		BytesPerSector: bps,
		EndOfPartition: end,
	}
	dev, err := blockdev.OpenFileDevice(image, uint64(bps), end)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer dev.Close()

	if err := volume.Save(descPath, desc); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	log.Printf("created %s (%d sectors * %d bytes) and %s", image, end, bps, descPath)
	return nil
}

func runRead(cache *blockcache.Cache, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <sector> <count>")
	}
	sector, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("sector: %w", err)
	}
	count, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	buf := make([]byte, count*uint64(cache.SectorSize()))
	if !cache.ReadSectors(sector, count, buf) {
		return fmt.Errorf("read_sectors(%d, %d) failed", sector, count)
	}
	fmt.Println(hex.EncodeToString(buf))
	return nil
}

func runWrite(cache *blockcache.Cache, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: write <sector> <hex>")
	}
	sector, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("sector: %w", err)
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("hex payload: %w", err)
	}
	if len(data)%cache.SectorSize() != 0 {
		return fmt.Errorf("payload length %d is not a multiple of the sector size %d", len(data), cache.SectorSize())
	}
	count := uint64(len(data) / cache.SectorSize())
	if !cache.WriteSectors(sector, count, data) {
		return fmt.Errorf("write_sectors(%d, %d) failed", sector, count)
	}
	return nil
}

func printStats(cache *blockcache.Cache) {
	s := cache.Stats
	fmt.Printf("hits=%d misses=%d evictions=%d writebacks=%d bypasses=%d\n",
		s.Hits, s.Misses, s.Evictions, s.Writebacks, s.Bypasses)
}
