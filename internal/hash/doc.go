// Package hash provides the checksum used by layout reports.
//
// Reports are protected with CRC32-Castagnoli (CRC32C), which Go's crc32
// package computes with hardware instructions where available (SSE4.2 on
// x86-64, the CRC extension on ARM64).
//
//	checksum := hash.CRC32C(data)
package hash
