package ledger

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"
)

// Namespace tags the kind of record an address points at.
type Namespace string

const (
	NamespaceProfile Namespace = "profile"
	NamespacePost    Namespace = "post"
	NamespaceFollow  Namespace = "follow"
)

// pdaMarker is appended to every derivation hash input by the ledger runtime.
const pdaMarker = "ProgramDerivedAddress"

// Derive computes the address of the record (ns, owner[, index]) owned by program.
//
// The seeds are the tag bytes, the owner key and, when present, the index as an
// 8-byte big-endian integer. The result is the first off-curve SHA-256 digest of
// seeds||bump||program||marker for bump counting down from 255, which is how the
// on-chain program derives the same account.
func Derive(program Identity, ns Namespace, owner Identity, index ...uint64) Address {
	seeds := [][]byte{[]byte(ns), owner[:]}
	if len(index) > 0 {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], index[0])
		seeds = append(seeds, buf[:])
	}
	addr, _ := FindProgramAddress(program, seeds...)
	return addr
}

// FindProgramAddress returns the first valid program address and its bump seed.
func FindProgramAddress(program Identity, seeds ...[]byte) (Address, uint8) {
	for bump := 255; bump >= 0; bump-- {
		if addr, ok := createProgramAddress(program, append(seeds, []byte{byte(bump)})...); ok {
			return addr, uint8(bump)
		}
	}
	// Every bump landing on the curve has probability ~2^-256.
	panic("ledger: no viable bump seed for program address")
}

func createProgramAddress(program Identity, seeds ...[]byte) (Address, bool) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var addr Address
	copy(addr[:], h.Sum(nil))
	if isOnCurve(addr[:]) {
		return Address{}, false
	}
	return addr, true
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Deriver binds a program id so callers only supply the record key.
type Deriver struct {
	Program Identity
}

// NewDeriver creates a Deriver for program.
func NewDeriver(program Identity) Deriver {
	return Deriver{Program: program}
}

// Profile returns the address of owner's profile.
func (d Deriver) Profile(owner Identity) Address {
	return Derive(d.Program, NamespaceProfile, owner)
}

// Post returns the address of owner's post at index.
func (d Deriver) Post(owner Identity, index uint64) Address {
	return Derive(d.Program, NamespacePost, owner, index)
}

// Follow returns the address of owner's follow edge at index.
func (d Deriver) Follow(owner Identity, index uint64) Address {
	return Derive(d.Program, NamespaceFollow, owner, index)
}

// rangePrealloc caps the capacity Range reserves, since n is often a ledger
// counter.
const rangePrealloc = 1024

// Range returns the addresses for indices [0, n) in one namespace.
func (d Deriver) Range(ns Namespace, owner Identity, n uint64) []Address {
	capacity := n
	if capacity > rangePrealloc {
		capacity = rangePrealloc
	}
	addrs := make([]Address, 0, capacity)
	for i := uint64(0); i < n; i++ {
		addrs = append(addrs, Derive(d.Program, ns, owner, i))
	}
	return addrs
}
