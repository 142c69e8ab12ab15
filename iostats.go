package squashfs

import (
	"io"
	"sync"

	"vimagination.zapto.org/rwcount"
)

type ioStats struct {
	mu sync.Mutex

	rawBytesRead int64

	blocksDecompressed int64
	bytesOnDisk        int64
	bytesDecompressed  int64

	cacheHits map[string]int64
}

func newIOStats() *ioStats {
	return &ioStats{cacheHits: make(map[string]int64, 2)}
}

func (s *ioStats) addRawRead(n int64) {
	s.mu.Lock()
	s.rawBytesRead += n
	s.mu.Unlock()
}

func (s *ioStats) addCacheHit(name string) {
	s.mu.Lock()
	s.cacheHits[name]++
	s.mu.Unlock()
}

func (s *ioStats) addDecompressed(onDisk, decompressed int) {
	s.mu.Lock()
	s.blocksDecompressed++
	s.bytesOnDisk += int64(onDisk)
	s.bytesDecompressed += int64(decompressed)
	s.mu.Unlock()
}

// IOStats is a point-in-time snapshot of a Handle's cumulative I/O counters.
type IOStats struct {
	RawBytesRead       int64
	BlocksDecompressed int64
	BytesOnDisk        int64
	BytesDecompressed  int64
	MetadataCacheHits  int64
	FragmentCacheHits  int64
}

func (s *ioStats) snapshot() IOStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return IOStats{
		RawBytesRead:       s.rawBytesRead,
		BlocksDecompressed: s.blocksDecompressed,
		BytesOnDisk:        s.bytesOnDisk,
		BytesDecompressed:  s.bytesDecompressed,
		MetadataCacheHits:  s.cacheHits["metadata"],
		FragmentCacheHits:  s.cacheHits["fragment"],
	}
}

type countingReaderAt struct {
	r     io.ReaderAt
	stats *ioStats
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	cr := rwcount.Reader{Reader: io.NewSectionReader(c.r, off, int64(len(p)))}

	n, err := io.ReadFull(&cr, p)

	c.stats.addRawRead(cr.Count)

	return n, err
}
