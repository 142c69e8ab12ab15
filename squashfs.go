// Package squashfs implements a read-only accessor for SquashFS v4.0
// filesystem images: opening a Handle over any io.ReaderAt (a file, a
// memory-mapped region, an io.SectionReader into a larger archive) gives
// path lookup, directory enumeration and file reads through the standard
// io/fs interfaces, without requiring the image be extracted first.
package squashfs

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const maxSymlinkRedirects = 1024

// Handle is an open accessor over a single SquashFS image.
type Handle struct {
	reader       io.ReaderAt
	superblock   *superblock
	decompressor *decompressor

	metadataCache *blockCache
	fragmentCache *blockCache

	id             uuid.UUID
	followSymlinks bool
	logger         *log.Logger
	ioStats        *ioStats
}

var (
	_ fs.FS         = (*Handle)(nil)
	_ fs.StatFS     = (*Handle)(nil)
	_ fs.ReadDirFS  = (*Handle)(nil)
	_ fs.ReadFileFS = (*Handle)(nil)
)

// Open parses the superblock of r and returns a Handle ready to serve lookups.
func Open(r io.ReaderAt, opts ...OpenOption) (*Handle, error) {
	cfg := openConfig{cacheSizeHint: defaultCacheSizeHint, logger: log.StandardLogger()}

	for _, o := range opts {
		o(&cfg)
	}

	sb, err := readSuperblock(r)
	if err != nil {
		return nil, fmt.Errorf("squashfs: open: %w", err)
	}

	dec, err := newDecompressor(sb.Compressor)
	if err != nil {
		return nil, fmt.Errorf("squashfs: open: %w", err)
	}

	h := &Handle{
		superblock:     sb,
		decompressor:   dec,
		id:             uuid.New(),
		followSymlinks: cfg.followSymlinks,
		logger:         cfg.logger,
		ioStats:        newIOStats(),
	}

	h.reader = &countingReaderAt{r: r, stats: h.ioStats}
	h.metadataCache = newBlockCache("metadata", cfg.cacheSizeHint)
	h.fragmentCache = newBlockCache("fragment", cfg.cacheSizeHint)

	h.loadCompressorOptions()
	h.logf("debug: opened image id=%s compressor=%s blockSize=%d inodes=%d", h.id, sb.Compressor, sb.BlockSize, sb.Inodes)

	return h, nil
}

func (h *Handle) logf(format string, args ...any) {
	h.logger.Debugf(format, args...)
}

// ID uniquely identifies this Handle.
func (h *Handle) ID() uuid.UUID { return h.id }

// IOStats reports this Handle's cumulative I/O counters.
func (h *Handle) IOStats() IOStats { return h.ioStats.snapshot() }

// Stats returns the subset of the superblock exposed by ReadStats.
func (h *Handle) Stats() Stats { return h.superblock.Stats }

func (h *Handle) root() (fs.FileInfo, error) {
	return h.decodeInode(MetadataRef(h.superblock.RootInode), "")
}

// directory entries are stored in ascending name order, so the scan can
// stop as soon as it passes where name would sort.
func (h *Handle) findInDir(d *directory, name string) (dirEntry, error) {
	for {
		e, err := d.next()
		if err != nil {
			if err == io.EOF {
				return dirEntry{}, fs.ErrNotExist
			}

			return dirEntry{}, err
		}

		if e.name == name {
			return e, nil
		}

		if name < e.name {
			return dirEntry{}, fs.ErrNotExist
		}
	}
}

// resolve walks fpath from the root. followFinal lets Stat (follows) and
// LStat/Readlink (don't) share one walk.
func (h *Handle) resolve(fpath string, followFinal bool) (fs.FileInfo, error) {
	if !fs.ValidPath(fpath) {
		return nil, ErrInvalidPath
	}

	root, err := h.root()
	if err != nil {
		return nil, err
	}

	if fpath == "." {
		return root, nil
	}

	curr := root
	remaining := fpath
	fullPath := fpath
	cutAt := 0
	redirects := maxSymlinkRedirects

	for remaining != "" {
		slash := strings.IndexByte(remaining, '/')
		dirEnd := cutAt

		var name string

		if slash == -1 {
			name = remaining
			remaining = ""
		} else {
			name = remaining[:slash]
			remaining = remaining[slash+1:]
			cutAt += slash + 1
		}

		if name == "" || name == "." {
			continue
		}

		dir, ok := curr.(dirStat)
		if !ok {
			return nil, ErrNotADirectory
		}

		d, err := h.openDir(dir)
		if err != nil {
			return nil, err
		}

		entry, err := h.findInDir(d, name)
		if err != nil {
			return nil, err
		}

		next, err := entry.Info()
		if err != nil {
			return nil, err
		}

		curr = next
		isFinal := remaining == ""

		if sym, ok := curr.(symlinkStat); ok && h.followSymlinks && (!isFinal || followFinal) {
			redirects--

			if redirects <= 0 {
				return nil, fmt.Errorf("%w: too many symlink redirects resolving %q", ErrInvalidPath, fpath)
			}

			if strings.HasPrefix(sym.target, "/") {
				fullPath = path.Join(strings.TrimPrefix(sym.target, "/"), remaining)
			} else {
				fullPath = path.Join(fullPath[:dirEnd], sym.target, remaining)
			}

			remaining = fullPath
			cutAt = 0
			curr = root
		}
	}

	return curr, nil
}

// specialFile is returned by Open for device, pipe and socket inodes: Stat
// works, Read does not.
type specialFile struct {
	stat fs.FileInfo
}

func (s *specialFile) Stat() (fs.FileInfo, error) { return s.stat, nil }
func (*specialFile) Read([]byte) (int, error)      { return 0, fs.ErrInvalid }
func (*specialFile) Close() error                  { return nil }

// Open implements fs.FS. Opening a symlink fails unless the Handle was
// opened with FollowSymlinks, in which case its target is opened.
func (h *Handle) Open(name string) (fs.File, error) {
	fi, err := h.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	switch stat := fi.(type) {
	case dirStat:
		return h.openDir(stat)
	case fileStat:
		return h.openFile(stat), nil
	case symlinkStat:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	default:
		return &specialFile{stat: fi}, nil
	}
}

// Stat implements fs.StatFS.
func (h *Handle) Stat(name string) (fs.FileInfo, error) {
	fi, err := h.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}

	return fi, nil
}

// LStat reports the named entry itself, never following a final symlink.
func (h *Handle) LStat(name string) (fs.FileInfo, error) {
	fi, err := h.resolve(name, false)
	if err != nil {
		return nil, &fs.PathError{Op: "lstat", Path: name, Err: err}
	}

	return fi, nil
}

// ReadDir implements fs.ReadDirFS.
func (h *Handle) ReadDir(name string) ([]fs.DirEntry, error) {
	fi, err := h.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	dir, ok := fi.(dirStat)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotADirectory}
	}

	d, err := h.openDir(dir)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	entries, err := d.ReadDir(-1)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	return entries, nil
}

// ReadFile implements fs.ReadFileFS.
func (h *Handle) ReadFile(name string) ([]byte, error) {
	fi, err := h.resolve(name, true)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}

	fstat, ok := fi.(fileStat)
	if !ok {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: ErrNotAFile}
	}

	f := h.openFile(fstat)
	buf := make([]byte, fstat.fileSize)

	if _, err := io.ReadFull(f, buf); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}

	return buf, nil
}

// Readlink returns the verbatim target text stored in the named symlink.
func (h *Handle) Readlink(name string) (string, error) {
	fi, err := h.resolve(name, false)
	if err != nil {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: err}
	}

	sym, ok := fi.(symlinkStat)
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}

	return sym.target, nil
}
