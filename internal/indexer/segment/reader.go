package segment

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// Read loads the index snapshot at path.
func Read(path string) (*index.Tables, Header, error) {
	var tables index.Tables
	header, err := Decode(path, MagicBytes, &tables)
	if err != nil {
		return nil, Header{}, err
	}
	return &tables, header, nil
}

// Decode reads the snapshot at path into v. A missing file yields
// ErrNotFound so callers can rebuild; any other failure (short file, wrong
// magic, checksum mismatch, decode error) yields ErrIO.
func Decode(path string, magic uint32, v any) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Header{}, apperrors.NotFoundf("snapshot %s does not exist", path)
		}
		return Header{}, apperrors.IOf(err, "reading snapshot %s", path)
	}
	header, payload, err := split(data, magic)
	if err != nil {
		return Header{}, apperrors.IOf(err, "invalid snapshot %s", path)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Header{}, apperrors.IOf(err, "creating zstd decoder")
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return Header{}, apperrors.IOf(err, "decompressing snapshot %s", path)
	}
	if err := unmarshal(raw, v); err != nil {
		return Header{}, apperrors.IOf(err, "parsing snapshot %s", path)
	}
	return header, nil
}

// ReadHeader returns only the header of the snapshot at path.
func ReadHeader(path string, magic uint32) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Header{}, apperrors.NotFoundf("snapshot %s does not exist", path)
		}
		return Header{}, apperrors.IOf(err, "opening snapshot %s", path)
	}
	defer f.Close()
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, apperrors.IOf(err, "reading snapshot header %s", path)
	}
	h := decodeHeader(buf)
	if h.Magic != magic {
		return Header{}, apperrors.IOf(fmt.Errorf("bad magic bytes %x", h.Magic), "invalid snapshot %s", path)
	}
	return h, nil
}

// Exists reports whether a snapshot file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func split(data []byte, magic uint32) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, fmt.Errorf("file is %d bytes, shorter than header", len(data))
	}
	h := decodeHeader(data[:HeaderSize])
	if h.Magic != magic {
		return Header{}, nil, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, nil, fmt.Errorf("unsupported format version %d", h.Version)
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) != h.PayloadLen {
		return Header{}, nil, fmt.Errorf("payload is %d bytes, header says %d", len(payload), h.PayloadLen)
	}
	if sum := crc32.ChecksumIEEE(payload); sum != h.Checksum {
		return Header{}, nil, fmt.Errorf("checksum mismatch: %08x != %08x", sum, h.Checksum)
	}
	return h, payload, nil
}
