package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// record wire format (big-endian; heap and index page headers are
// little-endian):
//
//	LSN(8) | length(4) | xxhash64 checksum(8) | data(length)
func encodeRecord(lsn uint64, data []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(data))
	binary.BigEndian.PutUint64(buf[0:8], lsn)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(data)))
	binary.BigEndian.PutUint64(buf[12:20], checksumFor(lsn, data))
	copy(buf[recordHeaderSize:], data)
	return buf
}

// checksumFor hashes the LSN together with the data, so the stored
// checksum covers both. Nothing in this package verifies it.
func checksumFor(lsn uint64, data []byte) uint64 {
	h := xxhash.New()
	var lsnBuf [8]byte
	binary.BigEndian.PutUint64(lsnBuf[:], lsn)
	h.Write(lsnBuf[:])
	h.Write(data)
	return h.Sum64()
}

// decodeRecordHeader parses the fixed-size header; the caller reads
// exactly the returned length bytes next.
func decodeRecordHeader(header []byte) (lsn uint64, length uint32, checksum uint64, err error) {
	if len(header) != recordHeaderSize {
		return 0, 0, 0, fmt.Errorf("wal: record header must be %d bytes, got %d", recordHeaderSize, len(header))
	}
	lsn = binary.BigEndian.Uint64(header[0:8])
	length = binary.BigEndian.Uint32(header[8:12])
	checksum = binary.BigEndian.Uint64(header[12:20])
	return lsn, length, checksum, nil
}
