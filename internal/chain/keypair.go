package chain

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"

	"github.com/R3E-Network/ledgerfeed/internal/ledger"
)

// Keypair is an ed25519 key stored as the 64-byte seed||public array used by
// keypair JSON files.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair wraps an ed25519 private key.
func NewKeypair(priv ed25519.PrivateKey) *Keypair {
	return &Keypair{priv: priv}
}

// LoadKeypair reads a keypair file: a JSON array of 64 byte values.
func LoadKeypair(path string) (*Keypair, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	if len(ints) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("keypair %s: want %d bytes, got %d", path, ed25519.PrivateKeySize, len(ints))
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	return &Keypair{priv: ed25519.PrivateKey(raw)}, nil
}

// Identity returns the public key.
func (k *Keypair) Identity() ledger.Identity {
	var id ledger.Identity
	copy(id[:], k.priv.Public().(ed25519.PublicKey))
	return id
}

// KeypairSigner builds single-instruction legacy transactions and signs them
// with locally held keys. The submitting identity pays the fee.
type KeypairSigner struct {
	keys map[ledger.Identity]ed25519.PrivateKey
}

var _ TxSigner = (*KeypairSigner)(nil)

// NewKeypairSigner creates a signer holding keys.
func NewKeypairSigner(keys ...*Keypair) *KeypairSigner {
	s := &KeypairSigner{keys: make(map[ledger.Identity]ed25519.PrivateKey, len(keys))}
	for _, k := range keys {
		s.keys[k.Identity()] = k.priv
	}
	return s
}

// Identities lists the identities this signer can sign for.
func (s *KeypairSigner) Identities() []ledger.Identity {
	out := make([]ledger.Identity, 0, len(s.keys))
	for id := range s.keys {
		out = append(out, id)
	}
	return out
}

// SignTransaction returns the wire bytes of a transaction carrying ix, paid
// for and signed by signer.
func (s *KeypairSigner) SignTransaction(_ context.Context, ix ledger.Instruction, signer ledger.Identity, recentBlockhash string) ([]byte, error) {
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return nil, fmt.Errorf("invalid recent blockhash %q", recentBlockhash)
	}

	msg, signers := compileMessage(ix, signer, blockhash)

	tx := appendShortVec(nil, len(signers))
	for _, id := range signers {
		priv, ok := s.keys[id]
		if !ok {
			return nil, fmt.Errorf("no key for required signer %s", id)
		}
		tx = append(tx, ed25519.Sign(priv, msg)...)
	}
	return append(tx, msg...), nil
}

type compiledKey struct {
	key      ledger.Identity
	signer   bool
	writable bool
}

// compileMessage lays out a legacy message: header, account keys ordered
// writable signers, readonly signers, writable others, readonly others, then
// the blockhash and the single compiled instruction. It also returns the
// signer keys in signature order.
func compileMessage(ix ledger.Instruction, payer ledger.Identity, blockhash []byte) ([]byte, []ledger.Identity) {
	var keys []*compiledKey
	index := make(map[ledger.Identity]*compiledKey)
	add := func(id ledger.Identity, signer, writable bool) {
		if k, ok := index[id]; ok {
			k.signer = k.signer || signer
			k.writable = k.writable || writable
			return
		}
		k := &compiledKey{key: id, signer: signer, writable: writable}
		index[id] = k
		keys = append(keys, k)
	}

	add(payer, true, true)
	for _, m := range ix.Accounts {
		add(m.Key, m.IsSigner, m.IsWritable)
	}
	add(ix.Program, false, false)

	var ordered []*compiledKey
	for _, pass := range [][2]bool{{true, true}, {true, false}, {false, true}, {false, false}} {
		for _, k := range keys {
			if k.signer == pass[0] && k.writable == pass[1] {
				ordered = append(ordered, k)
			}
		}
	}

	var numSigners, roSigned, roUnsigned int
	signers := make([]ledger.Identity, 0, 1)
	position := make(map[ledger.Identity]int, len(ordered))
	for i, k := range ordered {
		position[k.key] = i
		switch {
		case k.signer:
			numSigners++
			signers = append(signers, k.key)
			if !k.writable {
				roSigned++
			}
		case !k.writable:
			roUnsigned++
		}
	}

	msg := []byte{byte(numSigners), byte(roSigned), byte(roUnsigned)}
	msg = appendShortVec(msg, len(ordered))
	for _, k := range ordered {
		msg = append(msg, k.key[:]...)
	}
	msg = append(msg, blockhash...)

	msg = appendShortVec(msg, 1)
	msg = append(msg, byte(position[ix.Program]))
	msg = appendShortVec(msg, len(ix.Accounts))
	for _, m := range ix.Accounts {
		msg = append(msg, byte(position[m.Key]))
	}
	msg = appendShortVec(msg, len(ix.Data))
	msg = append(msg, ix.Data...)

	return msg, signers
}

// appendShortVec appends n in the compact-u16 length encoding.
func appendShortVec(b []byte, n int) []byte {
	v := uint16(n)
	for {
		elem := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, elem)
		}
		b = append(b, elem|0x80)
	}
}
