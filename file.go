package squashfs

import (
	"fmt"
	"io"
	"io/fs"
	"sync"
)

const (
	blockSizeUncompressedFlag = 1 << 24
	blockSizeMask             = blockSizeUncompressedFlag - 1

	// fragmentBlockSentinel marks the file's single-block cache as holding
	// the decompressed fragment tail rather than one of its full blocks.
	fragmentBlockSentinel = -2
	noBlockCached         = -1
)

func blockOnDiskSize(raw uint32) (size int64, compressed bool) {
	return int64(raw & blockSizeMask), raw&blockSizeUncompressedFlag == 0
}

// file keeps at most one decompressed block in memory at a time: a full
// data block, or the fragment tail.
type file struct {
	h    *Handle
	stat fileStat

	// offsets[i] is the absolute on-disk byte offset of block i; the final
	// element is the offset just past the last full block, i.e. where the
	// fragment-bearing files' tail would have continued on disk.
	offsets []int64

	mu sync.Mutex
	pos int64

	curBlock int // index into stat.blockSizes, fragmentBlockSentinel, or noBlockCached
	curData  []byte
}

func (h *Handle) openFile(stat fileStat) *file {
	offsets := make([]int64, len(stat.blockSizes)+1)
	offsets[0] = int64(stat.blocksStart)

	for i, raw := range stat.blockSizes {
		size, _ := blockOnDiskSize(raw)
		offsets[i+1] = offsets[i] + size
	}

	return &file{h: h, stat: stat, offsets: offsets, curBlock: noBlockCached}
}

func (f *file) blockLen(idx int) int {
	blockSize := int(f.h.superblock.BlockSize)

	if idx == len(f.stat.blockSizes)-1 && f.stat.fragIndex == fieldDisabled {
		if rem := int(f.stat.fileSize % uint64(blockSize)); rem != 0 {
			return rem
		}
	}

	return blockSize
}

func (f *file) readBlock(idx int) ([]byte, error) {
	if f.curBlock == idx {
		return f.curData, nil
	}

	raw := f.stat.blockSizes[idx]
	size, compressed := blockOnDiskSize(raw)

	var data []byte

	if size == 0 {
		// sparse hole: never stored, all zeros
		data = make([]byte, f.blockLen(idx))
	} else {
		payload := make([]byte, size)
		if err := readAt(f.h.reader, payload, f.offsets[idx]); err != nil {
			return nil, err
		}

		if !compressed {
			data = payload
		} else {
			var err error

			data, err = f.h.decompressor.decompress(payload, int(f.h.superblock.BlockSize))
			if err != nil {
				return nil, err
			}
		}
	}

	f.curBlock = idx
	f.curData = data

	return data, nil
}

func (f *file) tailLen() int64 {
	return int64(f.stat.fileSize) - int64(len(f.stat.blockSizes))*int64(f.h.superblock.BlockSize)
}

func (f *file) readFragment() ([]byte, error) {
	if f.curBlock == fragmentBlockSentinel {
		return f.curData, nil
	}

	entry, err := f.h.lookupFragment(f.stat.fragIndex)
	if err != nil {
		return nil, err
	}

	block, err := f.h.fragmentCache.fetchFragment(f.h, int64(entry.start), int64(entry.size), entry.uncompressed)
	if err != nil {
		return nil, err
	}

	start := int64(f.stat.blockOffset)
	end := start + f.tailLen()

	if end > int64(len(block)) {
		return nil, ErrTruncated
	}

	tail := block[start:end]

	f.curBlock = fragmentBlockSentinel
	f.curData = tail

	return tail, nil
}

func (f *file) readAtLocked(p []byte, off int64) (int, error) {
	size := int64(f.stat.fileSize)
	if off >= size {
		return 0, io.EOF
	}

	blockSize := int64(f.h.superblock.BlockSize)
	nFullBlocks := int64(len(f.stat.blockSizes))
	total := 0

	for total < len(p) && off < size {
		idx := off / blockSize

		var (
			data      []byte
			blockBase int64
			err       error
		)

		if idx < nFullBlocks {
			data, err = f.readBlock(int(idx))
			blockBase = idx * blockSize
		} else {
			data, err = f.readFragment()
			blockBase = nFullBlocks * blockSize
		}

		if err != nil {
			if total > 0 {
				return total, nil
			}

			return 0, err
		}

		within := int(off - blockBase)
		if within >= len(data) {
			break
		}

		n := copy(p[total:], data[within:])
		total += n
		off += int64(n)
	}

	if total == 0 {
		return 0, io.EOF
	}

	return total, nil
}

func (f *file) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.readAtLocked(p, f.pos)
	f.pos += int64(n)

	return n, err
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.readAtLocked(p, off)
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var newPos int64

	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = f.pos + offset
	case io.SeekEnd:
		newPos = int64(f.stat.fileSize) + offset
	default:
		return 0, fmt.Errorf("squashfs: Seek: invalid whence %d", whence)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("squashfs: Seek: negative position")
	}

	f.pos = newPos

	return newPos, nil
}

func (f *file) Stat() (fs.FileInfo, error) { return f.stat, nil }
func (*file) Close() error                  { return nil }
