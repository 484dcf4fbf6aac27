package storage

import "hash/crc64"

var crcTable = crc64.MakeTable(crc64.ISO)

// checksum computes the checksum recorded in a Header for bytes a
// backend has just stored. No example repo in the reference corpus
// vendors a checksum library; crc64 is standard-library and sufficient
// for detecting the bit-rot and truncated-write cases a reconciler
// flags as Corrupted.
func checksum(data []byte) uint64 {
	return crc64.Checksum(data, crcTable)
}
