package txn

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

const (
	IdentifierSize = 32
	HashSize       = 32
	SignatureSize  = 64
)

// ErrInvalidEncoding is returned when a base58 string does not decode to the
// expected number of bytes.
var ErrInvalidEncoding = errors.New("invalid base58 encoding")

// Identifier names an account or a program. It is 32 opaque bytes; the only
// ordering is plain byte order, used for canonical sorting.
type Identifier [IdentifierSize]byte

// Hash is a 32-byte SHA-256 output of the chain's hash function.
type Hash [HashSize]byte

// Signature is a 64-byte signature produced by one required signer.
type Signature [SignatureSize]byte

// IdentifierFromByte returns an identifier whose first byte is b and whose
// remaining bytes are zero. Handy for tests and fixtures.
func IdentifierFromByte(b byte) Identifier {
	var id Identifier
	id[0] = b
	return id
}

// IsZero reports whether every byte of id is zero.
func (id Identifier) IsZero() bool { return id == Identifier{} }

// Compare orders identifiers by byte value.
func (id Identifier) Compare(other Identifier) int {
	return bytes.Compare(id[:], other[:])
}

func (id Identifier) String() string { return base58.Encode(id[:]) }

// Short returns the first 4 bytes in hex, for log lines.
func (id Identifier) Short() string { return fmt.Sprintf("%x..", id[:4]) }

func (id Identifier) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *Identifier) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentifier(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentifier decodes a base58 identifier.
func ParseIdentifier(s string) (Identifier, error) {
	var id Identifier
	if err := decodeFixed(s, id[:]); err != nil {
		return Identifier{}, fmt.Errorf("parse identifier %q: %w", s, err)
	}
	return id, nil
}

func (h Hash) String() string { return base58.Encode(h[:]) }

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return fmt.Sprintf("%x", h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a base58 hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := decodeFixed(s, h[:]); err != nil {
		return Hash{}, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return h, nil
}

// HashBytes returns SHA-256(data).
func HashBytes(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	var sig Signature
	if err := decodeFixed(string(text), sig[:]); err != nil {
		return fmt.Errorf("parse signature: %w", err)
	}
	*s = sig
	return nil
}

func decodeFixed(s string, dst []byte) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidEncoding, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// IndexList is a list of account_keys indices. It marshals to a JSON array
// of numbers rather than the base64 string encoding/json uses for []uint8.
type IndexList []uint8

func (l IndexList) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(l))
	for i, v := range l {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (l *IndexList) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make(IndexList, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("account index %d out of range", v)
		}
		out[i] = uint8(v)
	}
	*l = out
	return nil
}
