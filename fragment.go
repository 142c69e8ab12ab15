package squashfs

import (
	"bytes"
	"fmt"

	"vimagination.zapto.org/byteio"
)

const (
	fragmentEntrySize  = 16
	fragmentsPerBlock  = maxMetadataBlockLen / fragmentEntrySize // 512 entries per block

	fragmentSizeMask           = 0x00ffffff
	fragmentUncompressedFlag   = 0x01000000
)

type fragmentEntry struct {
	start        uint64
	size         uint32
	uncompressed bool
}

func (h *Handle) lookupFragment(idx uint32) (fragmentEntry, error) {
	if idx >= h.superblock.FragCount {
		return fragmentEntry{}, fmt.Errorf("%w: fragment index %d out of range (have %d)", ErrInvalidInode, idx, h.superblock.FragCount)
	}

	blockIdx := int64(idx) / fragmentsPerBlock
	within := int(int64(idx) % fragmentsPerBlock)

	ptr, err := uint64At(h.reader, int64(h.superblock.FragTable)+blockIdx*8)
	if err != nil {
		return fragmentEntry{}, err
	}

	data, _, err := h.metadataCache.fetch(h, int64(ptr))
	if err != nil {
		return fragmentEntry{}, err
	}

	off := within * fragmentEntrySize
	if off+fragmentEntrySize > len(data) {
		return fragmentEntry{}, ErrTruncated
	}

	ler := byteio.LittleEndianReader{Reader: bytes.NewReader(data[off : off+fragmentEntrySize])}

	start, _, _ := ler.ReadUint64()
	rawSize, _, err := ler.ReadUint32()

	if err != nil {
		return fragmentEntry{}, decodeErr(err)
	}

	return fragmentEntry{
		start:        start,
		size:         rawSize & fragmentSizeMask,
		uncompressed: rawSize&fragmentUncompressedFlag != 0,
	}, nil
}
