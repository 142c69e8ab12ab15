package squashfs

import (
	"errors"
	"io/fs"
)

// Sentinel errors returned by this package. Use errors.Is to test for them;
// public-surface operations wrap them in an *fs.PathError carrying the
// path that was being resolved.
var (
	ErrNotSquashFS           = errors.New("squashfs: not a squashfs image (bad magic number)")
	ErrUnsupportedVersion    = errors.New("squashfs: unsupported version, only 4.0 is supported")
	ErrUnsupportedCompressor = errors.New("squashfs: unsupported compressor")
	ErrInvalidBlockSize      = errors.New("squashfs: block size does not match its log2")
	ErrTruncated             = errors.New("squashfs: truncated read, unexpected end of image")
	ErrInvalidMetadataHeader = errors.New("squashfs: invalid metadata block header")
	ErrInvalidInode          = errors.New("squashfs: invalid or unrecognised inode")
	ErrInvalidDirectory      = errors.New("squashfs: invalid directory listing")
	ErrDecompressFailure     = errors.New("squashfs: decompression failed")
	ErrOversizeBlock         = errors.New("squashfs: decompressed block exceeds maximum size")
	ErrInvalidPath           = errors.New("squashfs: invalid path")

	// ErrNotFound, ErrNotADirectory and ErrNotAFile reuse the stdlib io/fs
	// sentinels so callers that only know io/fs (fstest.TestFS included)
	// get the errors.Is behaviour they already expect.
	ErrNotFound     = fs.ErrNotExist
	ErrNotADirectory = fs.ErrInvalid
	ErrNotAFile      = fs.ErrInvalid
)
