package squashfs

import (
	"sync"
)

// blockCache memoizes decompressed blocks keyed by their absolute on-disk
// offset. Entries are never evicted for the lifetime of a Handle.
type blockCache struct {
	mu     sync.RWMutex
	blocks map[int64]cachedBlock

	name string // "metadata" or "fragment", for debug logging only
}

type cachedBlock struct {
	data      []byte
	onDiskLen int64
}

func newBlockCache(name string, sizeHint int) *blockCache {
	return &blockCache{
		blocks: make(map[int64]cachedBlock, sizeHint),
		name:   name,
	}
}

func (c *blockCache) fetch(h *Handle, absOffset int64) ([]byte, int64, error) {
	if cb, ok := c.get(absOffset); ok {
		h.ioStats.addCacheHit(c.name)

		return cb.data, cb.onDiskLen, nil
	}

	var header [metadataHeaderLen]byte
	if err := readAt(h.reader, header[:], absOffset); err != nil {
		return nil, 0, err
	}

	raw := uint16(header[0]) | uint16(header[1])<<8
	size := int64(raw & metadataSizeMask)

	if size > maxMetadataBlockLen {
		return nil, 0, ErrInvalidMetadataHeader
	}

	payload := make([]byte, size)
	if err := readAt(h.reader, payload, absOffset+metadataHeaderLen); err != nil {
		return nil, 0, err
	}

	data := payload

	if raw&metadataUncompressedFlag == 0 {
		var err error

		data, err = h.decompressor.decompress(payload, maxMetadataBlockLen)
		if err != nil {
			return nil, 0, err
		}
	}

	h.ioStats.addDecompressed(len(payload), len(data))
	h.logf("debug: %s cache miss at offset %d, %d bytes on disk, %d decompressed", c.name, absOffset, size, len(data))

	c.put(absOffset, cachedBlock{data: data, onDiskLen: size})

	return data, size, nil
}

func (c *blockCache) fetchFragment(h *Handle, absOffset int64, size int64, uncompressed bool) ([]byte, error) {
	if cb, ok := c.get(absOffset); ok {
		h.ioStats.addCacheHit(c.name)

		return cb.data, nil
	}

	payload := make([]byte, size)
	if err := readAt(h.reader, payload, absOffset); err != nil {
		return nil, err
	}

	data := payload

	if !uncompressed {
		var err error

		data, err = h.decompressor.decompress(payload, int(h.superblock.BlockSize))
		if err != nil {
			return nil, err
		}
	}

	h.ioStats.addDecompressed(len(payload), len(data))
	h.logf("debug: %s cache miss at offset %d, %d bytes on disk, %d decompressed", c.name, absOffset, size, len(data))

	c.put(absOffset, cachedBlock{data: data, onDiskLen: size})

	return data, nil
}

func (c *blockCache) get(absOffset int64) (cachedBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cb, ok := c.blocks[absOffset]

	return cb, ok
}

func (c *blockCache) put(absOffset int64, cb cachedBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have filled this entry while we were
	// decompressing; keep whichever was inserted first so repeated reads
	// of the same block always return the identical byte slice.
	if _, ok := c.blocks[absOffset]; !ok {
		c.blocks[absOffset] = cb
	}
}
