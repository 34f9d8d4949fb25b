package alu

import (
	"encoding/binary"
	"math"
)

// V128FromI32x4 packs four int32 lanes into a V128, little-endian.
func V128FromI32x4(lanes [4]int32) V128 {
	var v V128
	for i, l := range lanes {
		binary.LittleEndian.PutUint32(v[i*4:], uint32(l))
	}
	return v
}

// I32x4Lanes unpacks a V128's four int32 lanes.
func I32x4Lanes(v V128) [4]int32 {
	var lanes [4]int32
	for i := range lanes {
		lanes[i] = int32(binary.LittleEndian.Uint32(v[i*4:]))
	}
	return lanes
}

// V128FromI16x8 packs eight int16 lanes into a V128, little-endian.
func V128FromI16x8(lanes [8]int16) V128 {
	var v V128
	for i, l := range lanes {
		binary.LittleEndian.PutUint16(v[i*2:], uint16(l))
	}
	return v
}

// V128FromI64x2 packs two int64 lanes into a V128, little-endian.
func V128FromI64x2(lanes [2]int64) V128 {
	var v V128
	for i, l := range lanes {
		binary.LittleEndian.PutUint64(v[i*8:], uint64(l))
	}
	return v
}

// V128FromF64x2 packs two float64 lanes into a V128, little-endian.
func V128FromF64x2(lanes [2]float64) V128 {
	var v V128
	for i, l := range lanes {
		binary.LittleEndian.PutUint64(v[i*8:], math.Float64bits(l))
	}
	return v
}

// F64x2Lanes unpacks a V128's two float64 lanes.
func F64x2Lanes(v V128) [2]float64 {
	var lanes [2]float64
	for i := range lanes {
		lanes[i] = math.Float64frombits(binary.LittleEndian.Uint64(v[i*8:]))
	}
	return lanes
}
