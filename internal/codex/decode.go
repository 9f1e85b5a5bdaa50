package codex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/talgya/burzen-core/internal/cells"
)

// RejectionKind names why a token was refused.
type RejectionKind string

const (
	RejectSchema   RejectionKind = "SCHEMA"
	RejectVersion  RejectionKind = "VERSION"
	RejectChecksum RejectionKind = "CHECKSUM"
	RejectOrder    RejectionKind = "ORDER"
)

// RejectionError reports a token that failed to decode or was out of order.
type RejectionError struct {
	Kind   RejectionKind
	Reason string
	Err    error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codex: rejected (%s): %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("codex: rejected (%s): %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// Reject builds a RejectionError.
func Reject(kind RejectionKind, reason string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason}
}

// IsRejection reports whether err is a RejectionError of the given kind.
func IsRejection(err error, kind RejectionKind) bool {
	var rej *RejectionError
	return errors.As(err, &rej) && rej.Kind == kind
}

const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "schema",
    "energy_setpoint",
    "epigenetic_profile",
    "cascade_readiness",
    "stress_resilience",
    "differentiation_axis",
    "mechanical_state"
  ],
  "properties": {
    "schema": {"const": "eigenstate_v1"},
    "energy_setpoint": {"type": "number"},
    "epigenetic_profile": {"type": "number"},
    "cascade_readiness": {"type": "number"},
    "stress_resilience": {"type": "number"},
    "differentiation_axis": {"type": "number"},
    "mechanical_state": {"type": "number"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func eigenstateSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("eigenstate_v1.schema.json", payloadSchema)
	})
	return compiledSchema, schemaErr
}

// Split separates a token into payload and checksum without verifying either.
// It anchors on the fixed prefix and the final '.', since the payload itself
// contains decimal points.
func Split(token string) (payload string, sum uint32, err error) {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return "", 0, Reject(RejectSchema, "malformed token")
	}
	if token[:dot+1] != Prefix {
		return "", 0, Reject(RejectVersion, fmt.Sprintf("unsupported version %q", token[:dot]))
	}
	last := strings.LastIndexByte(token, '.')
	if last < len(Prefix) {
		return "", 0, Reject(RejectSchema, "missing checksum")
	}
	hex := token[last+1:]
	if len(hex) != checksumLen || !isLowerHex(hex) {
		return "", 0, Reject(RejectSchema, "checksum must be 8 lowercase hex digits")
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "", 0, &RejectionError{Kind: RejectSchema, Reason: "bad checksum", Err: err}
	}
	return token[len(Prefix):last], uint32(v), nil
}

// Verify checks a token's version and checksum and returns its payload.
func Verify(token string) (string, error) {
	payload, sum, err := Split(token)
	if err != nil {
		return "", err
	}
	if Checksum([]byte(payload)) != sum {
		return "", Reject(RejectChecksum, "checksum mismatch")
	}
	return payload, nil
}

type wirePayload struct {
	Schema              string  `json:"schema"`
	EnergySetpoint      float64 `json:"energy_setpoint"`
	EpigeneticProfile   float64 `json:"epigenetic_profile"`
	CascadeReadiness    float64 `json:"cascade_readiness"`
	StressResilience    float64 `json:"stress_resilience"`
	DifferentiationAxis float64 `json:"differentiation_axis"`
	MechanicalState     float64 `json:"mechanical_state"`
}

// Decode verifies a token and returns the Eigenstate it carries. Fields come
// back rounded to six decimals, as encoded. Failures are *RejectionError.
func Decode(token string) (cells.Eigenstate, error) {
	payload, err := Verify(token)
	if err != nil {
		return cells.Eigenstate{}, err
	}

	schema, err := eigenstateSchema()
	if err != nil {
		return cells.Eigenstate{}, fmt.Errorf("compile payload schema: %w", err)
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return cells.Eigenstate{}, &RejectionError{Kind: RejectSchema, Reason: "payload is not JSON", Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return cells.Eigenstate{}, &RejectionError{Kind: RejectSchema, Reason: "payload does not match " + Schema, Err: err}
	}

	var w wirePayload
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		return cells.Eigenstate{}, &RejectionError{Kind: RejectSchema, Reason: "payload fields", Err: err}
	}
	return cells.Eigenstate{
		EnergySetpoint:      float32(w.EnergySetpoint),
		EpigeneticProfile:   float32(w.EpigeneticProfile),
		CascadeReadiness:    float32(w.CascadeReadiness),
		StressResilience:    float32(w.StressResilience),
		DifferentiationAxis: float32(w.DifferentiationAxis),
		MechanicalState:     float32(w.MechanicalState),
	}, nil
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
