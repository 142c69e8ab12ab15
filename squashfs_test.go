package squashfs

import (
	"bytes"
	"io"
	"io/fs"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func openFixture(t *testing.T, opts ...OpenOption) *Handle {
	t.Helper()

	h, err := Open(bytes.NewReader(buildFixture(t)), opts...)
	require.NoError(t, err)

	return h
}

func TestOpenReadsSuperblock(t *testing.T) {
	h := openFixture(t)

	stats := h.Stats()
	require.Equal(t, CompressorGZIP, stats.Compressor)
	require.Equal(t, uint32(fixtureBlockSize), stats.BlockSize)
	require.True(t, stats.HasFlag(flagNoFragments))
}

func TestReadFileByteAccuracy(t *testing.T) {
	h := openFixture(t)

	got, err := h.ReadFile("hello.txt")
	require.NoError(t, err)
	require.Equal(t, fixtureContent, got)
}

func TestOpenAndStreamRead(t *testing.T) {
	h := openFixture(t)

	f, err := h.Open("hello.txt")
	require.NoError(t, err)

	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, fixtureContent, got)

	fi, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, int64(len(fixtureContent)), fi.Size())
	require.False(t, fi.IsDir())
}

func TestSeekIdempotence(t *testing.T) {
	h := openFixture(t)

	rf, err := h.Open("hello.txt")
	require.NoError(t, err)

	defer rf.Close()

	f, ok := rf.(*file)
	require.True(t, ok)

	first := make([]byte, 5)
	_, err = io.ReadFull(f, first)
	require.NoError(t, err)

	pos, err := f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	second := make([]byte, 5)
	_, err = io.ReadFull(f, second)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestIDResolution(t *testing.T) {
	h := openFixture(t)

	fi, err := h.Stat("hello.txt")
	require.NoError(t, err)

	fstat, ok := fi.Sys().(fileStat)
	require.True(t, ok)
	require.Equal(t, uint32(fixtureUID), fstat.uid)
	require.Equal(t, uint32(fixtureUID), fstat.gid)
}

func TestReadDirEnumerationComplete(t *testing.T) {
	h := openFixture(t)

	entries, err := h.ReadDir(".")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	require.True(t, sort.StringsAreSorted(names), "ReadDir must return entries sorted by name")
	require.Equal(t, []string{"hello.txt", "link"}, names)

	require.False(t, entries[0].IsDir())
	require.Equal(t, fs.ModeSymlink, entries[1].Type())
}

func TestSymlinkNotFollowedByDefault(t *testing.T) {
	h := openFixture(t)

	_, err := h.Open("link")
	require.Error(t, err)

	target, err := h.Readlink("link")
	require.NoError(t, err)
	require.Equal(t, fixtureTarget, target)

	fi, err := h.LStat("link")
	require.NoError(t, err)
	require.Equal(t, fs.ModeSymlink, fi.Mode().Type())
	require.Equal(t, int64(len(fixtureTarget)), fi.Size())

	fi, err = h.Stat("link")
	require.NoError(t, err)
	require.Equal(t, fs.ModeSymlink, fi.Mode().Type(), "Stat without FollowSymlinks must not resolve the symlink")
}

func TestFollowSymlinksOption(t *testing.T) {
	h := openFixture(t, FollowSymlinks())

	f, err := h.Open("link")
	require.NoError(t, err)

	defer f.Close()

	got, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, fixtureContent, got)

	fi, err := h.Stat("link")
	require.NoError(t, err)
	require.Zero(t, fi.Mode()&fs.ModeSymlink)
	require.Equal(t, int64(len(fixtureContent)), fi.Size())
}

func TestPathResolutionRejectsMissingEntries(t *testing.T) {
	h := openFixture(t)

	_, err := h.Stat("does-not-exist")
	require.Error(t, err)

	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestPathResolutionThroughNonDirectory(t *testing.T) {
	h := openFixture(t)

	_, err := h.Stat("hello.txt/nested")
	require.Error(t, err)
}

func TestCacheTransparency(t *testing.T) {
	h := openFixture(t)

	first, err := h.ReadFile("hello.txt")
	require.NoError(t, err)

	before := h.IOStats()

	second, err := h.ReadFile("hello.txt")
	require.NoError(t, err)

	after := h.IOStats()

	require.Equal(t, first, second, "repeated reads of the same file must be byte-identical")
	require.Greater(t, after.MetadataCacheHits, before.MetadataCacheHits,
		"resolving the same path twice must hit the metadata cache the second time")
}

func TestReadDirResultIsStableAcrossCalls(t *testing.T) {
	h := openFixture(t)

	first, err := h.ReadDir(".")
	require.NoError(t, err)

	second, err := h.ReadDir(".")
	require.NoError(t, err)

	names := func(entries []fs.DirEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Name() + ":" + e.Type().String()
		}

		return out
	}

	if diff := cmp.Diff(names(first), names(second)); diff != "" {
		t.Errorf("ReadDir(\".\") not stable across calls (-first +second):\n%s", diff)
	}
}

func TestIOStatsTracksRawReads(t *testing.T) {
	h := openFixture(t)

	_, err := h.ReadFile("hello.txt")
	require.NoError(t, err)

	require.Greater(t, h.IOStats().RawBytesRead, int64(0))
}

func TestReadStatsProbeWithoutOpen(t *testing.T) {
	stats, err := ReadStats(bytes.NewReader(buildFixture(t)))
	require.NoError(t, err)
	require.Equal(t, CompressorGZIP, stats.Compressor)
}
