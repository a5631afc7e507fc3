// Package ledger defines identities, record addresses and their deterministic derivation.
package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentitySize is the byte length of an identity public key.
const IdentitySize = 32

// Identity is an actor's public key on the ledger.
type Identity [IdentitySize]byte

// ParseIdentity decodes a base58 identity.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("decode identity %q: %w", s, err)
	}
	if len(raw) != IdentitySize {
		return id, fmt.Errorf("identity %q: expected %d bytes, got %d", s, IdentitySize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityFromBytes copies b into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("identity: expected %d bytes, got %d", IdentitySize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether no identity was supplied.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Address is the deterministic key of a record account.
type Address [IdentitySize]byte

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	id, err := ParseIdentity(s)
	return Address(id), err
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
