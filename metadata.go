package squashfs

const (
	maxMetadataBlockLen = 1 << 13 // 8 KiB, the largest decompressed metadata block
	metadataHeaderLen   = 2

	metadataPointerShift = 16
	metadataPointerMask  = 0xffff

	metadataSizeMask           = 0x7fff
	metadataUncompressedFlag   = 0x8000
)

// MetadataRef packs (block_start, offset): the high 48 bits are a metadata
// block's header offset relative to its table, the low 16 bits are a byte
// offset into that block's decompressed payload.
type MetadataRef uint64

func newMetadataRef(blockStart uint32, offset uint16) MetadataRef {
	return MetadataRef(uint64(blockStart)<<metadataPointerShift | uint64(offset))
}

func (r MetadataRef) split() (blockStart uint32, offset uint16) {
	return uint32(r >> metadataPointerShift), uint16(r & metadataPointerMask)
}

// metadataStream presents the chain of 8 KiB metadata blocks starting at a
// reference into a table as a single byte stream positioned at that
// reference; crossing a block boundary is transparent to Read callers.
type metadataStream struct {
	h     *Handle
	table int64

	blockStart int64
	onDiskLen  int64
	data       []byte
	pos        int
}

func (h *Handle) newMetadataStream(table int64, ref MetadataRef) (*metadataStream, error) {
	blockStart, offset := ref.split()

	m := &metadataStream{h: h, table: table}

	if err := m.loadBlock(table + int64(blockStart)); err != nil {
		return nil, err
	}

	if int(offset) > len(m.data) {
		return nil, ErrInvalidMetadataHeader
	}

	m.pos = int(offset)

	return m, nil
}

func (m *metadataStream) loadBlock(absOffset int64) error {
	data, onDiskLen, err := m.h.metadataCache.fetch(m.h, absOffset)
	if err != nil {
		return err
	}

	m.blockStart = absOffset
	m.onDiskLen = onDiskLen
	m.data = data
	m.pos = 0

	return nil
}

func (m *metadataStream) position() MetadataRef {
	return newMetadataRef(uint32(m.blockStart-m.table), uint16(m.pos))
}

func (m *metadataStream) Read(p []byte) (int, error) {
	total := 0

	for total < len(p) {
		if m.pos >= len(m.data) {
			next := m.blockStart + metadataHeaderLen + m.onDiskLen

			if err := m.loadBlock(next); err != nil {
				if total > 0 {
					return total, nil
				}

				return 0, err
			}
		}

		n := copy(p[total:], m.data[m.pos:])
		m.pos += n
		total += n
	}

	return total, nil
}
