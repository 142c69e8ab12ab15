package squashfs

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"vimagination.zapto.org/byteio"
)

const (
	superblockLen = 96 // fixed layout, offsets 0x00-0x60
	magic         = 0x73717368
	versionMajor  = 4
	versionMinor  = 0

	flagUncompressedInodes    = 0x0001
	flagUncompressedData      = 0x0002
	flagCheck                 = 0x0004
	flagUncompressedFragments = 0x0008
	flagNoFragments           = 0x0010
	flagAlwaysFragments       = 0x0020
	flagDuplicates            = 0x0040
	flagExportable            = 0x0080
	flagUncompressedXattrs    = 0x0100
	flagNoXattrs              = 0x0200
	flagCompressorOptions     = 0x0400
)

type Stats struct {
	Inodes     uint32
	ModTime    time.Time
	BlockSize  uint32
	FragCount  uint32
	Compressor Compressor
	Flags      uint16
	IDCount    uint16
	BytesUsed  uint64
}

func (s Stats) HasFlag(flag uint16) bool {
	return s.Flags&flag != 0
}

type superblock struct {
	Stats

	RootInode   uint64
	IDTable     uint64
	XattrTable  uint64
	InodeTable  uint64
	DirTable    uint64
	FragTable   uint64
	ExportTable uint64
}

func readSuperblock(r io.ReaderAt) (*superblock, error) {
	buf := make([]byte, superblockLen)
	if err := readAt(r, buf, 0); err != nil {
		return nil, err
	}

	ler := byteio.StickyLittleEndianReader{Reader: bytes.NewReader(buf)}

	if ler.ReadUint32() != magic {
		return nil, ErrNotSquashFS
	}

	var sb superblock

	sb.Inodes = ler.ReadUint32()
	sb.ModTime = time.Unix(int64(ler.ReadUint32()), 0)
	sb.BlockSize = ler.ReadUint32()
	sb.FragCount = ler.ReadUint32()
	sb.Compressor = Compressor(ler.ReadUint16())

	blockLog := ler.ReadUint16()
	if 1<<blockLog != sb.BlockSize {
		return nil, ErrInvalidBlockSize
	}

	sb.Flags = ler.ReadUint16()
	sb.IDCount = ler.ReadUint16()

	if vMajor, vMinor := ler.ReadUint16(), ler.ReadUint16(); vMajor != versionMajor || vMinor != versionMinor {
		return nil, ErrUnsupportedVersion
	}

	sb.RootInode = ler.ReadUint64()
	sb.BytesUsed = ler.ReadUint64()
	sb.IDTable = ler.ReadUint64()
	sb.XattrTable = ler.ReadUint64()
	sb.InodeTable = ler.ReadUint64()
	sb.DirTable = ler.ReadUint64()
	sb.FragTable = ler.ReadUint64()
	sb.ExportTable = ler.ReadUint64()

	if ler.Err != nil {
		return nil, decodeErr(ler.Err)
	}

	return &sb, nil
}

// ReadStats reads only the superblock from r, without loading anything else.
func ReadStats(r io.ReaderAt) (*Stats, error) {
	sb, err := readSuperblock(r)
	if err != nil {
		return nil, fmt.Errorf("squashfs: reading superblock: %w", err)
	}

	return &sb.Stats, nil
}

// loadCompressorOptions reads and discards the compressor-options metadata
// block declared by flagCompressorOptions: tuning hints (dictionary size,
// level, filter chains) that don't change how this accessor decompresses a
// block, so a parse failure here is logged rather than failing Open.
func (h *Handle) loadCompressorOptions() {
	if !h.superblock.HasFlag(flagCompressorOptions) {
		return
	}

	m, err := h.newMetadataStream(superblockLen, newMetadataRef(0, 0))
	if err != nil {
		h.logf("debug: compressor options block unavailable: %s", err)

		return
	}

	buf := make([]byte, len(m.data))

	if _, err := io.ReadFull(m, buf); err != nil && err != io.ErrUnexpectedEOF {
		h.logf("debug: compressor options block unreadable: %s", err)
	}
}
