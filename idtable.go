package squashfs

import (
	"bytes"
	"fmt"

	"vimagination.zapto.org/byteio"
)

const idsPerBlock = maxMetadataBlockLen / 4 // 2048 uint32 ids per decompressed block

func (h *Handle) lookupID(idx uint16) (uint32, error) {
	if idx >= h.superblock.IDCount {
		return 0, fmt.Errorf("%w: id index %d out of range (have %d)", ErrInvalidInode, idx, h.superblock.IDCount)
	}

	blockIdx := int64(idx) / idsPerBlock
	within := int(int64(idx) % idsPerBlock)

	ptr, err := uint64At(h.reader, int64(h.superblock.IDTable)+blockIdx*8)
	if err != nil {
		return 0, err
	}

	data, _, err := h.metadataCache.fetch(h, int64(ptr))
	if err != nil {
		return 0, err
	}

	off := within * 4
	if off+4 > len(data) {
		return 0, ErrTruncated
	}

	ler := byteio.LittleEndianReader{Reader: bytes.NewReader(data[off : off+4])}

	v, _, err := ler.ReadUint32()

	return v, decodeErr(err)
}
