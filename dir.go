package squashfs

import (
	"io"
	"io/fs"
	"sync"

	"vimagination.zapto.org/byteio"
)

// dirSizeFudge accounts for SquashFS's own directory logical-size quirk:
// the inode's fileSize counts 3 bytes that are never actually present in
// the encoded listing. The walker stops three bytes early rather than
// trying to read them.
const dirSizeFudge = 3

type dirHeader struct {
	start           uint32
	inodeNumberBase uint32
}

type directory struct {
	h    *Handle
	stat dirStat

	mu sync.Mutex

	stream            *metadataStream
	remaining         int64
	header            dirHeader
	headerEntriesLeft uint32
}

func (h *Handle) openDir(stat dirStat) (*directory, error) {
	ref := newMetadataRef(stat.blockIndex, stat.blockOffset)

	m, err := h.newMetadataStream(int64(h.superblock.DirTable), ref)
	if err != nil {
		return nil, err
	}

	remaining := int64(stat.fileSize) - dirSizeFudge
	if remaining < 0 {
		remaining = 0
	}

	return &directory{h: h, stat: stat, stream: m, remaining: remaining}, nil
}

func (d *directory) readHeader() error {
	ler := byteio.StickyLittleEndianReader{Reader: d.stream}

	count := ler.ReadUint32() + 1
	start := ler.ReadUint32()
	inodeBase := ler.ReadUint32()

	if ler.Err != nil {
		return decodeErr(ler.Err)
	}

	d.remaining -= 12
	d.header = dirHeader{start: start, inodeNumberBase: inodeBase}
	d.headerEntriesLeft = count

	return nil
}

func (d *directory) next() (dirEntry, error) {
	if d.remaining <= 0 {
		return dirEntry{}, io.EOF
	}

	if d.headerEntriesLeft == 0 {
		if err := d.readHeader(); err != nil {
			return dirEntry{}, err
		}
	}

	ler := byteio.StickyLittleEndianReader{Reader: d.stream}

	offset := ler.ReadUint16()
	delta := ler.ReadInt16()
	typ := ler.ReadUint16()
	nameLen := ler.ReadUint16()
	name := ler.ReadString(int(nameLen) + 1)

	if ler.Err != nil {
		return dirEntry{}, decodeErr(ler.Err)
	}

	d.remaining -= 8 + int64(nameLen) + 1
	d.headerEntriesLeft--

	return dirEntry{
		h:           d.h,
		name:        name,
		typ:         typ,
		ptr:         newMetadataRef(d.header.start, offset),
		inodeNumber: uint32(int32(d.header.inodeNumberBase) + int32(delta)),
	}, nil
}

func (d *directory) ReadDir(n int) ([]fs.DirEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var entries []fs.DirEntry

	for n <= 0 || len(entries) < n {
		e, err := d.next()
		if err != nil {
			if err == io.EOF {
				if n <= 0 {
					return entries, nil
				}

				if len(entries) == 0 {
					return nil, io.EOF
				}

				return entries, nil
			}

			return entries, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func (d *directory) Stat() (fs.FileInfo, error) { return d.stat, nil }
func (*directory) Read([]byte) (int, error)      { return 0, fs.ErrInvalid }
func (*directory) Close() error                  { return nil }

type dirEntry struct {
	h           *Handle
	name        string
	typ         uint16
	ptr         MetadataRef
	inodeNumber uint32
}

func (e dirEntry) Name() string { return e.name }
func (e dirEntry) IsDir() bool  { return e.typ == inodeBasicDir }

func (e dirEntry) Type() fs.FileMode {
	switch e.typ {
	case inodeBasicDir:
		return fs.ModeDir
	case inodeBasicFile:
		return 0
	case inodeBasicSymlink:
		return fs.ModeSymlink
	case inodeBasicBlock:
		return fs.ModeDevice
	case inodeBasicChar:
		return fs.ModeCharDevice | fs.ModeDevice
	case inodeBasicPipe:
		return fs.ModeNamedPipe
	case inodeBasicSock:
		return fs.ModeSocket
	}

	return fs.ModeIrregular
}

func (e dirEntry) Info() (fs.FileInfo, error) {
	return e.h.decodeInode(e.ptr, e.name)
}

func (e dirEntry) InodeNumber() uint32 { return e.inodeNumber }
