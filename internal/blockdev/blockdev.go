// Package blockdev defines the block-device capability the cache consumes
// and two concrete implementations: a raw file on disk and an in-memory
// reference device for tests.
package blockdev

// Device is the block-device capability a cache sits on top of. Both
// calls are synchronous and atomic at device granularity; a false return
// means the whole transfer failed and nothing should be assumed about
// partial progress.
//
// dst/src must be exactly count*bytesPerSector bytes; callers are
// responsible for sizing the buffer, the device only trusts the length it
// is given.
type Device interface {
	ReadSectors(start uint64, count uint64, dst []byte) bool
	WriteSectors(start uint64, count uint64, src []byte) bool
}
