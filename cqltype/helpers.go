package cqltype

import (
	"encoding/binary"
	"math"
	"math/big"
)

func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func be64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func float32bits(f float32) uint32    { return math.Float32bits(f) }
func float64bits(f float64) uint64    { return math.Float64bits(f) }
func bitsToFloat32(u uint32) float32  { return math.Float32frombits(u) }
func bitsToFloat64(u uint64) float64  { return math.Float64frombits(u) }

// encodeVarint writes v as a minimal-length big-endian two's-complement
// byte run, matching the CQL varint wire format.
func encodeVarint(v *big.Int) []byte {
	if v.Sign() == 0 {
		return []byte{0}
	}
	if v.Sign() > 0 {
		b := v.Bytes()
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return b
	}

	mag := new(big.Int).Neg(v)
	mag.Sub(mag, big.NewInt(1))
	nbits := mag.BitLen() + 1
	nbytes := (nbits + 7) / 8
	if nbytes == 0 {
		nbytes = 1
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(nbytes*8))
	tc := new(big.Int).Add(v, mod)
	b := tc.Bytes()
	for len(b) < nbytes {
		b = append([]byte{0}, b...)
	}
	if b[0]&0x80 == 0 {
		b = append([]byte{0xff}, b...)
	}
	return b
}

// decodeVarint reads a minimal-length big-endian two's-complement byte run
// into a signed big.Int.
func decodeVarint(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	v := new(big.Int).SetBytes(b)
	if b[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(b)*8))
		v.Sub(v, mod)
	}
	return v
}
