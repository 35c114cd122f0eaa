// Package segment persists index tables as a single snapshot file: a fixed
// 64-byte header followed by a zstd-compressed CBOR payload. All four tables
// live in one artifact so a snapshot is either fully written or absent.
package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/errors"
)

// MagicBytes identifies an index snapshot ("HSNP"). Other snapshot kinds
// pass their own magic to Encode and Decode.
const (
	MagicBytes    uint32 = 0x48534E50
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
)

// Header is the fixed-size prefix of every snapshot.
type Header struct {
	Magic      uint32
	Version    uint32
	DocCount   uint32
	EntryCount uint32
	CreatedAt  int64
	PayloadLen uint64
	Checksum   uint32
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.DocCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.EntryCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], h.PayloadLen)
	binary.LittleEndian.PutUint32(buf[32:36], h.Checksum)
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		DocCount:   binary.LittleEndian.Uint32(buf[8:12]),
		EntryCount: binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(buf[16:24])),
		PayloadLen: binary.LittleEndian.Uint64(buf[24:32]),
		Checksum:   binary.LittleEndian.Uint32(buf[32:36]),
	}
}

// Write atomically replaces the index snapshot at path with tables.
func Write(path string, tables *index.Tables) (Header, error) {
	if tables == nil {
		return Header{}, fmt.Errorf("cannot write nil tables")
	}
	return Encode(path, MagicBytes, len(tables.Documents), len(tables.Postings), tables)
}

// Encode serialises v as zstd-compressed CBOR behind a header carrying magic
// and the two counts, then atomically replaces path: it writes a .tmp file,
// syncs it, and renames it into place.
func Encode(path string, magic uint32, docCount, entryCount int, v any) (Header, error) {
	raw, err := marshal(v)
	if err != nil {
		return Header{}, apperrors.IOf(err, "marshaling snapshot payload")
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return Header{}, apperrors.IOf(err, "creating zstd encoder")
	}
	payload := enc.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	enc.Close()

	header := Header{
		Magic:      magic,
		Version:    FormatVersion,
		DocCount:   uint32(docCount),
		EntryCount: uint32(entryCount),
		CreatedAt:  time.Now().Unix(),
		PayloadLen: uint64(len(payload)),
		Checksum:   crc32.ChecksumIEEE(payload),
	}
	if err := writeAtomic(path, header.encode(), payload); err != nil {
		return Header{}, err
	}
	return header, nil
}

func writeAtomic(path string, parts ...[]byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.IOf(err, "creating snapshot directory %s", dir)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.IOf(err, "creating temp snapshot file")
	}
	defer os.Remove(tmpPath)
	for _, p := range parts {
		if _, err := f.Write(p); err != nil {
			f.Close()
			return apperrors.IOf(err, "writing snapshot")
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apperrors.IOf(err, "syncing snapshot")
	}
	if err := f.Close(); err != nil {
		return apperrors.IOf(err, "closing snapshot")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperrors.IOf(err, "renaming snapshot into place")
	}
	return nil
}
