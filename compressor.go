package squashfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"vimagination.zapto.org/memio"
)

type Compressor uint16

const (
	CompressorGZIP Compressor = 1
	CompressorLZMA Compressor = 2
	CompressorLZO  Compressor = 3
	CompressorXZ   Compressor = 4
	CompressorLZ4  Compressor = 5
	CompressorZSTD Compressor = 6
)

func (c Compressor) String() string {
	switch c {
	case CompressorGZIP:
		return "gzip"
	case CompressorLZMA:
		return "lzma"
	case CompressorLZO:
		return "lzo"
	case CompressorXZ:
		return "xz"
	case CompressorLZ4:
		return "lz4"
	case CompressorZSTD:
		return "zstd"
	}

	return "unknown"
}

// decompressor is not safe for concurrent use; one is created per Handle.
type decompressor struct {
	kind Compressor
	zstd *zstd.Decoder
}

// lzma, lzo and lz4 are out of scope for this accessor and always report
// ErrUnsupportedCompressor.
func newDecompressor(c Compressor) (*decompressor, error) {
	switch c {
	case CompressorGZIP, CompressorXZ:
		return &decompressor{kind: c}, nil
	case CompressorZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("squashfs: initializing zstd decoder: %w", err)
		}

		return &decompressor{kind: c, zstd: dec}, nil
	default:
		return nil, fmt.Errorf("%w: compressor id %d (%s)", ErrUnsupportedCompressor, uint16(c), c)
	}
}

func (d *decompressor) decompress(raw []byte, maxLen int) ([]byte, error) {
	switch d.kind {
	case CompressorGZIP:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompressFailure, err)
		}

		defer zr.Close()

		return readCapped(zr, maxLen)
	case CompressorXZ:
		xr, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompressFailure, err)
		}

		return readCapped(xr, maxLen)
	case CompressorZSTD:
		out, err := d.zstd.DecodeAll(raw, make([]byte, 0, maxLen))
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDecompressFailure, err)
		}

		if len(out) > maxLen {
			return nil, ErrOversizeBlock
		}

		return out, nil
	}

	return nil, fmt.Errorf("%w: compressor id %d", ErrUnsupportedCompressor, uint16(d.kind))
}

func readCapped(r io.Reader, maxLen int) ([]byte, error) {
	buf := make(memio.Buffer, 0, maxLen)

	n, err := io.Copy(&buf, io.LimitReader(r, int64(maxLen)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecompressFailure, err)
	}

	if n > int64(maxLen) {
		return nil, ErrOversizeBlock
	}

	return []byte(buf), nil
}
