package netlink

import (
	ne "github.com/josharian/native"
)

// Netlink uses host byte ordering for every header and attribute field. Only
// payloads flagged with NLA_F_NET_BYTEORDER carry big endian data.

func putUint16(b []byte, v uint16) { ne.Endian.PutUint16(b, v) }
func putUint32(b []byte, v uint32) { ne.Endian.PutUint32(b, v) }

func getUint16(b []byte) uint16 { return ne.Endian.Uint16(b) }
func getUint32(b []byte) uint32 { return ne.Endian.Uint32(b) }
func getUint64(b []byte) uint64 { return ne.Endian.Uint64(b) }

func appendUint16(b []byte, v uint16) []byte {
	var buf [2]byte
	ne.Endian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	ne.Endian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var buf [8]byte
	ne.Endian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

// Htons converts a port number to network byte order, as sock_diag expects.
func Htons(in uint16) uint16 {
	if !ne.IsBigEndian {
		return uint16((in&0xFF)<<8) | uint16((in>>8)&0xFF)
	}
	return in
}
