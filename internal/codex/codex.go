// Package codex serializes an Eigenstate into a versioned, checksummed token:
//
//	XDX1.<payload>.<fnv1a32 hex>
//
// The payload is a fixed-schema JSON object with six-decimal fields. The
// checksum covers the payload bytes only, so the payload formatting must never
// drift: same field order, same precision, same punctuation.
package codex

import (
	"errors"
	"strconv"

	"github.com/talgya/burzen-core/internal/cells"
)

const (
	// Prefix opens every token.
	Prefix = "XDX1."
	// Schema names the payload layout.
	Schema = "eigenstate_v1"

	checksumLen = 8
	precision   = 6

	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

// ErrBufferTooSmall is returned by EncodeTo when the destination cannot hold
// the whole token. Nothing is written in that case.
var ErrBufferTooSmall = errors.New("codex: destination buffer too small for token")

// Field order is part of the wire format.
var fieldNames = [6]string{
	"energy_setpoint",
	"epigenetic_profile",
	"cascade_readiness",
	"stress_resilience",
	"differentiation_axis",
	"mechanical_state",
}

func fields(e cells.Eigenstate) [6]float32 {
	return [6]float32{
		e.EnergySetpoint,
		e.EpigeneticProfile,
		e.CascadeReadiness,
		e.StressResilience,
		e.DifferentiationAxis,
		e.MechanicalState,
	}
}

// AppendPayload appends the canonical payload for e to dst.
func AppendPayload(dst []byte, e cells.Eigenstate) []byte {
	dst = append(dst, `{"schema":"`...)
	dst = append(dst, Schema...)
	dst = append(dst, '"')
	for i, v := range fields(e) {
		dst = append(dst, ',', '"')
		dst = append(dst, fieldNames[i]...)
		dst = append(dst, '"', ':')
		dst = strconv.AppendFloat(dst, float64(v), 'f', precision, 64)
	}
	return append(dst, '}')
}

// Payload returns the canonical payload for e.
func Payload(e cells.Eigenstate) string {
	return string(AppendPayload(nil, e))
}

// Checksum is the 32-bit FNV-1a hash of b.
func Checksum(b []byte) uint32 {
	h := fnvOffset
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h
}

// AppendToken appends the full token for e to dst.
func AppendToken(dst []byte, e cells.Eigenstate) []byte {
	dst = append(dst, Prefix...)
	start := len(dst)
	dst = AppendPayload(dst, e)
	sum := Checksum(dst[start:])
	dst = append(dst, '.')
	return appendHex32(dst, sum)
}

// Encode returns the token for e. Equal inputs always produce identical bytes.
// Fields must be finite: NaN and ±Inf are outside the wire format, and their
// tokens are rejected by Decode as SCHEMA. Export never yields them.
func Encode(e cells.Eigenstate) string {
	return string(AppendToken(make([]byte, 0, 256), e))
}

// EncodeTo writes the token for e into dst and returns its length. If dst is
// too short it returns ErrBufferTooSmall and leaves dst untouched.
func EncodeTo(dst []byte, e cells.Eigenstate) (int, error) {
	tok := AppendToken(make([]byte, 0, 256), e)
	if len(tok) > len(dst) {
		return 0, ErrBufferTooSmall
	}
	return copy(dst, tok), nil
}

func appendHex32(dst []byte, v uint32) []byte {
	const digits = "0123456789abcdef"
	for shift := 28; shift >= 0; shift -= 4 {
		dst = append(dst, digits[(v>>uint(shift))&0xf])
	}
	return dst
}
