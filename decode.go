package squashfs

import (
	"bytes"
	"errors"
	"io"

	"vimagination.zapto.org/byteio"
)

func decodeErr(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}

	return err
}

func readAt(r io.ReaderAt, buf []byte, off int64) error {
	_, err := r.ReadAt(buf, off)

	return decodeErr(err)
}

func uint64At(r io.ReaderAt, off int64) (uint64, error) {
	var buf [8]byte
	if err := readAt(r, buf[:], off); err != nil {
		return 0, err
	}

	ler := byteio.LittleEndianReader{Reader: bytes.NewReader(buf[:])}

	v, _, err := ler.ReadUint64()

	return v, decodeErr(err)
}
