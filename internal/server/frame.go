package server

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/Distortions81/ripple-field/internal/ripple"
)

// Binary frame layout, little endian:
//
//	u32 width | u32 height | u64 step | width*height binary16 heights
const frameHeader = 16

var errShortFrame = errors.New("server: frame too short")

// half is an IEEE 754 binary16 value.
type half uint16

// toHalf rounds f to the nearest binary16, saturating to infinity.
func toHalf(f float32) half {
	bits := math.Float32bits(f)
	sign := half(bits>>16) & 0x8000
	exp := int(bits>>23) & 0xff
	mant := bits & 0x7fffff

	if exp == 0xff {
		if mant == 0 {
			return sign | 0x7c00
		}
		// Keep NaN a NaN even when the payload is shifted out.
		return sign | 0x7c00 | half(max(mant>>13, 1))
	}
	if exp == 0 && mant == 0 {
		return sign
	}

	e := exp - 127 + 15
	switch {
	case e >= 0x1f:
		return sign | 0x7c00
	case e <= 0:
		if e < -10 {
			return sign
		}
		m := (mant | 0x800000) >> uint(1-e)
		return sign | half((m+0x1000)>>13)
	}
	m := mant + 0x1000
	if m&0x800000 != 0 {
		m = 0
		e++
		if e >= 0x1f {
			return sign | 0x7c00
		}
	}
	return sign | half(e<<10) | half(m>>13)
}

// Float32 widens h exactly.
func (h half) Float32() float32 {
	sign := uint32(h>>15) << 31
	exp := int(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		e := -14
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(e+127)<<23 | mant<<13)
	case 0x1f:
		bits := sign | 0x7f800000 | mant<<13
		if mant != 0 {
			bits |= 1
		}
		return math.Float32frombits(bits)
	}
	return math.Float32frombits(sign | uint32(exp-15+127)<<23 | mant<<13)
}

// frameSize returns the dimensions of a frame sampled every step cells.
func frameSize(width, height, step int) (int, int) {
	if step < 1 {
		step = 1
	}
	return (width + step - 1) / step, (height + step - 1) / step
}

// encodeFrame samples v every step cells into dst, growing it as needed.
func encodeFrame(dst []byte, v ripple.View, step int, steps uint64) []byte {
	if step < 1 {
		step = 1
	}
	w, h := frameSize(v.Width(), v.Height(), step)
	n := frameHeader + 2*w*h
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	binary.LittleEndian.PutUint32(dst[0:], uint32(w))
	binary.LittleEndian.PutUint32(dst[4:], uint32(h))
	binary.LittleEndian.PutUint64(dst[8:], steps)
	o := frameHeader
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			binary.LittleEndian.PutUint16(dst[o:], uint16(toHalf(v.At(x*step, y*step))))
			o += 2
		}
	}
	return dst
}

// Frame is a decoded height frame.
type Frame struct {
	Width, Height int
	Step          uint64
	Heights       []float32
}

// DecodeFrame parses a binary frame message.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < frameHeader {
		return Frame{}, errShortFrame
	}
	f := Frame{
		Width:  int(binary.LittleEndian.Uint32(b[0:])),
		Height: int(binary.LittleEndian.Uint32(b[4:])),
		Step:   binary.LittleEndian.Uint64(b[8:]),
	}
	n := f.Width * f.Height
	if len(b) < frameHeader+2*n {
		return Frame{}, errShortFrame
	}
	f.Heights = make([]float32, n)
	for i := range f.Heights {
		f.Heights[i] = half(binary.LittleEndian.Uint16(b[frameHeader+2*i:])).Float32()
	}
	return f, nil
}
