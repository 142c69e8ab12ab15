package squashfs

import (
	"fmt"
	"io/fs"
	"time"

	"vimagination.zapto.org/byteio"
)

const (
	inodeBasicDir     = 1
	inodeBasicFile    = 2
	inodeBasicSymlink = 3
	inodeBasicBlock   = 4
	inodeBasicChar    = 5
	inodeBasicPipe    = 6
	inodeBasicSock    = 7
	inodeExtDir       = 8
	inodeExtFile      = 9
	inodeExtSymlink   = 10
	inodeExtBlock     = 11
	inodeExtChar      = 12
	inodeExtPipe      = 13
	inodeExtSock      = 14

	fieldDisabled = 0xffffffff
)

type commonStat struct {
	name   string
	perms  uint16
	uid    uint32
	gid    uint32
	mtime  time.Time
	number uint32
}

func (c commonStat) Name() string       { return c.name }
func (c commonStat) Mode() fs.FileMode  { return fs.FileMode(c.perms) }
func (c commonStat) ModTime() time.Time { return c.mtime }
func (c commonStat) IsDir() bool        { return false }
func (c commonStat) Size() int64        { return 0 }

// decoded to stay positioned on the metadata stream; not used for lookups.
type dirIndexEntry struct {
	index uint32
	start uint32
	name  string
}

type dirStat struct {
	commonStat

	blockIndex  uint32
	linkCount   uint32
	fileSize    uint32
	blockOffset uint16
	parentInode uint32
	xattrIndex  uint32
	index       []dirIndexEntry
}

func (d dirStat) Mode() fs.FileMode { return fs.ModeDir | fs.FileMode(d.perms) }
func (d dirStat) IsDir() bool       { return true }
func (d dirStat) Sys() any          { return d }

func readBasicDir(ler *byteio.StickyLittleEndianReader, common commonStat) dirStat {
	return dirStat{
		commonStat:  common,
		blockIndex:  ler.ReadUint32(),
		linkCount:   ler.ReadUint32(),
		fileSize:    uint32(ler.ReadUint16()),
		blockOffset: ler.ReadUint16(),
		parentInode: ler.ReadUint32(),
		xattrIndex:  fieldDisabled,
	}
}

func readExtDir(ler *byteio.StickyLittleEndianReader, common commonStat) dirStat {
	d := dirStat{
		commonStat:  common,
		linkCount:   ler.ReadUint32(),
		fileSize:    ler.ReadUint32(),
		blockIndex:  ler.ReadUint32(),
		parentInode: ler.ReadUint32(),
		index:       make([]dirIndexEntry, ler.ReadUint16()),
		blockOffset: ler.ReadUint16(),
		xattrIndex:  ler.ReadUint32(),
	}

	for n := range d.index {
		d.index[n] = dirIndexEntry{
			index: ler.ReadUint32(),
			start: ler.ReadUint32(),
			name:  ler.ReadString(int(ler.ReadUint32()) + 1),
		}
	}

	return d
}

type fileStat struct {
	commonStat

	blocksStart uint64
	sparse      uint64
	linkCount   uint32
	fragIndex   uint32
	blockOffset uint32
	fileSize    uint64
	xattrIndex  uint32
	blockSizes  []uint32
}

func (f fileStat) Size() int64 { return int64(f.fileSize) }
func (f fileStat) Sys() any    { return f }

func readBlockSizes(ler *byteio.StickyLittleEndianReader, fileSize uint64, fragIndex uint32, blockSize uint32) []uint32 {
	var blockCount uint64

	if fileSize > 0 {
		if fragIndex == fieldDisabled {
			blockCount = 1 + (fileSize-1)/uint64(blockSize)
		} else {
			blockCount = fileSize / uint64(blockSize)
		}
	}

	sizes := make([]uint32, blockCount)

	for n := range sizes {
		sizes[n] = ler.ReadUint32()
	}

	return sizes
}

func readBasicFile(ler *byteio.StickyLittleEndianReader, common commonStat, blockSize uint32) fileStat {
	f := fileStat{
		commonStat:  common,
		blocksStart: uint64(ler.ReadUint32()),
		fragIndex:   ler.ReadUint32(),
		blockOffset: ler.ReadUint32(),
		fileSize:    uint64(ler.ReadUint32()),
		xattrIndex:  fieldDisabled,
	}

	f.blockSizes = readBlockSizes(ler, f.fileSize, f.fragIndex, blockSize)

	return f
}

func readExtFile(ler *byteio.StickyLittleEndianReader, common commonStat, blockSize uint32) fileStat {
	f := fileStat{
		commonStat:  common,
		blocksStart: ler.ReadUint64(),
		fileSize:    ler.ReadUint64(),
		sparse:      ler.ReadUint64(),
		linkCount:   ler.ReadUint32(),
		fragIndex:   ler.ReadUint32(),
		blockOffset: ler.ReadUint32(),
		xattrIndex:  ler.ReadUint32(),
	}

	f.blockSizes = readBlockSizes(ler, f.fileSize, f.fragIndex, blockSize)

	return f
}

type symlinkStat struct {
	commonStat

	linkCount  uint32
	target     string
	xattrIndex uint32
}

func (s symlinkStat) Mode() fs.FileMode { return fs.ModeSymlink | fs.FileMode(s.perms) }
func (s symlinkStat) Size() int64       { return int64(len(s.target)) }
func (s symlinkStat) Sys() any          { return s }

func readBasicSymlink(ler *byteio.StickyLittleEndianReader, common commonStat) symlinkStat {
	return symlinkStat{
		commonStat: common,
		linkCount:  ler.ReadUint32(),
		target:     ler.ReadString(int(ler.ReadUint32())),
		xattrIndex: fieldDisabled,
	}
}

func readExtSymlink(ler *byteio.StickyLittleEndianReader, common commonStat) symlinkStat {
	s := readBasicSymlink(ler, common)
	s.xattrIndex = ler.ReadUint32()

	return s
}

type deviceStat struct {
	commonStat

	linkCount    uint32
	deviceNumber uint32
	xattrIndex   uint32
	char         bool
}

func (d deviceStat) Mode() fs.FileMode {
	if d.char {
		return fs.ModeCharDevice | fs.FileMode(d.perms)
	}

	return fs.ModeDevice | fs.FileMode(d.perms)
}

func (d deviceStat) Sys() any { return d }

func readBasicDevice(ler *byteio.StickyLittleEndianReader, common commonStat, char bool) deviceStat {
	return deviceStat{
		commonStat:   common,
		linkCount:    ler.ReadUint32(),
		deviceNumber: ler.ReadUint32(),
		xattrIndex:   fieldDisabled,
		char:         char,
	}
}

func readExtDevice(ler *byteio.StickyLittleEndianReader, common commonStat, char bool) deviceStat {
	d := readBasicDevice(ler, common, char)
	d.xattrIndex = ler.ReadUint32()

	return d
}

type pipeStat struct {
	commonStat

	linkCount  uint32
	xattrIndex uint32
	socket     bool
}

func (p pipeStat) Mode() fs.FileMode {
	if p.socket {
		return fs.ModeSocket | fs.FileMode(p.perms)
	}

	return fs.ModeNamedPipe | fs.FileMode(p.perms)
}

func (p pipeStat) Sys() any { return p }

func readBasicPipe(ler *byteio.StickyLittleEndianReader, common commonStat, socket bool) pipeStat {
	return pipeStat{
		commonStat: common,
		linkCount:  ler.ReadUint32(),
		xattrIndex: fieldDisabled,
		socket:     socket,
	}
}

func readExtPipe(ler *byteio.StickyLittleEndianReader, common commonStat, socket bool) pipeStat {
	p := readBasicPipe(ler, common, socket)
	p.xattrIndex = ler.ReadUint32()

	return p
}

func (h *Handle) decodeInodeBody(ler *byteio.StickyLittleEndianReader, typ uint16, common commonStat) (fs.FileInfo, error) {
	blockSize := h.superblock.BlockSize

	switch typ {
	case inodeBasicDir:
		return readBasicDir(ler, common), nil
	case inodeExtDir:
		return readExtDir(ler, common), nil
	case inodeBasicFile:
		return readBasicFile(ler, common, blockSize), nil
	case inodeExtFile:
		return readExtFile(ler, common, blockSize), nil
	case inodeBasicSymlink:
		return readBasicSymlink(ler, common), nil
	case inodeExtSymlink:
		return readExtSymlink(ler, common), nil
	case inodeBasicBlock:
		return readBasicDevice(ler, common, false), nil
	case inodeExtBlock:
		return readExtDevice(ler, common, false), nil
	case inodeBasicChar:
		return readBasicDevice(ler, common, true), nil
	case inodeExtChar:
		return readExtDevice(ler, common, true), nil
	case inodeBasicPipe:
		return readBasicPipe(ler, common, false), nil
	case inodeExtPipe:
		return readExtPipe(ler, common, false), nil
	case inodeBasicSock:
		return readBasicPipe(ler, common, true), nil
	case inodeExtSock:
		return readExtPipe(ler, common, true), nil
	default:
		return nil, fmt.Errorf("%w: unknown inode type %d", ErrInvalidInode, typ)
	}
}

func (h *Handle) decodeInode(ref MetadataRef, name string) (fs.FileInfo, error) {
	m, err := h.newMetadataStream(int64(h.superblock.InodeTable), ref)
	if err != nil {
		return nil, err
	}

	ler := byteio.StickyLittleEndianReader{Reader: m}

	typ := ler.ReadUint16()
	perms := ler.ReadUint16()
	uidIdx := ler.ReadUint16()
	gidIdx := ler.ReadUint16()
	mtime := ler.ReadUint32()
	number := ler.ReadUint32()

	if ler.Err != nil {
		return nil, decodeErr(ler.Err)
	}

	uid, err := h.lookupID(uidIdx)
	if err != nil {
		return nil, err
	}

	gid, err := h.lookupID(gidIdx)
	if err != nil {
		return nil, err
	}

	common := commonStat{
		name:   name,
		perms:  perms,
		uid:    uid,
		gid:    gid,
		mtime:  time.Unix(int64(mtime), 0),
		number: number,
	}

	fi, err := h.decodeInodeBody(&ler, typ, common)
	if err != nil {
		return nil, err
	}

	if ler.Err != nil {
		return nil, decodeErr(ler.Err)
	}

	return fi, nil
}
