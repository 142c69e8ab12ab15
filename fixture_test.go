package squashfs

import (
	"bytes"
	"testing"
	"time"

	"vimagination.zapto.org/byteio"
)

// This file hand-assembles a tiny, valid SquashFS v4.0 image byte-for-byte,
// the way sqfstar would, without shelling out to it (not assumed present).
// Every block is declared uncompressed at the block-header level, so the
// fixture exercises the decode, caching and lookup paths without dragging
// the compression codecs into every test.

const (
	fixtureBlockLog  = 17
	fixtureBlockSize = 1 << fixtureBlockLog

	fixtureRootIno = 1
	fixtureFileIno = 2
	fixtureLinkIno = 3
	fixtureUID     = 1000
)

var (
	fixtureMTime   = time.Unix(1700000000, 0)
	fixtureContent = []byte("hello world\n")
	fixtureTarget  = "hello.txt"
)

func putMetadataBlock(buf *bytes.Buffer, payload []byte) {
	raw := uint16(len(payload)) | metadataUncompressedFlag
	buf.WriteByte(byte(raw))
	buf.WriteByte(byte(raw >> 8))
	buf.Write(payload)
}

func writeCommonFields(w *byteio.StickyLittleEndianWriter, perms uint16, uidIdx, gidIdx uint16, number uint32) {
	w.WriteUint16(perms)
	w.WriteUint16(uidIdx)
	w.WriteUint16(gidIdx)
	w.WriteUint32(uint32(fixtureMTime.Unix()))
	w.WriteUint32(number)
}

// buildFixture returns a complete image containing a root directory with
// two entries: a regular file "hello.txt" and a symlink "link" pointing at
// it, both owned by fixtureUID through the id table's single entry.
func buildFixture(t *testing.T) []byte {
	t.Helper()

	var inodeBuf bytes.Buffer

	ilew := byteio.StickyLittleEndianWriter{Writer: &inodeBuf}

	fileOffset := inodeBuf.Len()
	ilew.WriteUint16(inodeBasicFile)
	writeCommonFields(&ilew, 0644, 0, 0, fixtureFileIno)
	ilew.WriteUint32(superblockLen) // blocksStart: the file's one data block sits right after the superblock
	ilew.WriteUint32(fieldDisabled) // fragIndex: no fragment used
	ilew.WriteUint32(0)                // blockOffset
	ilew.WriteUint32(uint32(len(fixtureContent)))
	ilew.WriteUint32(uint32(len(fixtureContent)) | blockSizeUncompressedFlag)

	linkOffset := inodeBuf.Len()
	ilew.WriteUint16(inodeBasicSymlink)
	writeCommonFields(&ilew, 0777, 0, 0, fixtureLinkIno)
	ilew.WriteUint32(1) // linkCount
	ilew.WriteUint32(uint32(len(fixtureTarget)))
	ilew.WriteString(fixtureTarget)

	var dirBuf bytes.Buffer

	dlew := byteio.StickyLittleEndianWriter{Writer: &dirBuf}

	dlew.WriteUint32(1) // 2 entries, stored as count-1
	dlew.WriteUint32(0) // header.start: inode table blockStart (relative), single block
	dlew.WriteUint32(fixtureRootIno)

	dlew.WriteUint16(uint16(fileOffset))
	dlew.WriteUint16(uint16(int16(fixtureFileIno) - int16(fixtureRootIno)))
	dlew.WriteUint16(inodeBasicFile)
	dlew.WriteUint16(uint16(len("hello.txt") - 1))
	dlew.WriteString("hello.txt")

	dlew.WriteUint16(uint16(linkOffset))
	dlew.WriteUint16(uint16(int16(fixtureLinkIno) - int16(fixtureRootIno)))
	dlew.WriteUint16(inodeBasicSymlink)
	dlew.WriteUint16(uint16(len("link") - 1))
	dlew.WriteString("link")

	rootOffset := inodeBuf.Len()
	ilew.WriteUint16(inodeBasicDir)
	writeCommonFields(&ilew, 0755, 0, 0, fixtureRootIno)
	ilew.WriteUint32(0) // blockIndex: directory table blockStart (relative), single block
	ilew.WriteUint32(2) // linkCount
	ilew.WriteUint16(uint16(dirBuf.Len() + dirSizeFudge))
	ilew.WriteUint16(0) // blockOffset
	ilew.WriteUint32(fixtureRootIno)

	var idBuf bytes.Buffer

	idlew := byteio.StickyLittleEndianWriter{Writer: &idBuf}
	idlew.WriteUint32(fixtureUID)

	dataOffset := int64(superblockLen)
	inodeTableOffset := dataOffset + int64(len(fixtureContent))
	inodeTableLen := int64(metadataHeaderLen + inodeBuf.Len())
	dirTableOffset := inodeTableOffset + inodeTableLen
	dirTableLen := int64(metadataHeaderLen + dirBuf.Len())
	idBlockOffset := dirTableOffset + dirTableLen
	idBlockLen := int64(metadataHeaderLen + idBuf.Len())
	idTableOffset := idBlockOffset + idBlockLen
	totalLen := idTableOffset + 8

	inodeBytes := inodeBuf.Bytes()

	var img bytes.Buffer

	slew := byteio.StickyLittleEndianWriter{Writer: &img}
	slew.WriteUint32(magic)
	slew.WriteUint32(3) // inode count
	slew.WriteUint32(uint32(fixtureMTime.Unix()))
	slew.WriteUint32(fixtureBlockSize)
	slew.WriteUint32(0) // fragCount
	slew.WriteUint16(uint16(CompressorGZIP))
	slew.WriteUint16(fixtureBlockLog)
	slew.WriteUint16(flagNoFragments | flagNoXattrs)
	slew.WriteUint16(1) // idCount
	slew.WriteUint16(versionMajor)
	slew.WriteUint16(versionMinor)
	slew.WriteUint64(uint64(newMetadataRef(0, uint16(rootOffset))))
	slew.WriteUint64(uint64(totalLen))
	slew.WriteUint64(uint64(idTableOffset))
	slew.WriteUint64(^uint64(0))
	slew.WriteUint64(uint64(inodeTableOffset))
	slew.WriteUint64(uint64(dirTableOffset))
	slew.WriteUint64(^uint64(0))
	slew.WriteUint64(^uint64(0))

	if slew.Err != nil {
		t.Fatalf("building fixture superblock: %s", slew.Err)
	}

	img.Write(fixtureContent)
	putMetadataBlock(&img, inodeBytes)
	putMetadataBlock(&img, dirBuf.Bytes())
	putMetadataBlock(&img, idBuf.Bytes())

	plew := byteio.StickyLittleEndianWriter{Writer: &img}
	plew.WriteUint64(uint64(idBlockOffset))

	if int64(img.Len()) != totalLen {
		t.Fatalf("fixture length mismatch: built %d bytes, computed layout wants %d", img.Len(), totalLen)
	}

	return img.Bytes()
}

