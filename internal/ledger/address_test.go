package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(seed string) Identity {
	return Identity(sha256.Sum256([]byte(seed)))
}

func TestDerive_Deterministic(t *testing.T) {
	program := testIdentity("program")
	owner := testIdentity("alice")

	assert.Equal(t, Derive(program, NamespacePost, owner, 7), Derive(program, NamespacePost, owner, 7))
	assert.Equal(t, Derive(program, NamespaceProfile, owner), Derive(program, NamespaceProfile, owner))
}

func TestDerive_NoCollisionsAcrossKeys(t *testing.T) {
	program := testIdentity("program")
	owners := []Identity{testIdentity("alice"), testIdentity("bob")}
	seen := make(map[Address]string)

	record := func(addr Address, key string) {
		prev, dup := seen[addr]
		require.False(t, dup, "address collision between %s and %s", prev, key)
		seen[addr] = key
	}

	for _, owner := range owners {
		record(Derive(program, NamespaceProfile, owner), owner.String()+"/profile")
		for i := uint64(0); i < 16; i++ {
			record(Derive(program, NamespacePost, owner, i), owner.String()+"/post")
			record(Derive(program, NamespaceFollow, owner, i), owner.String()+"/follow")
		}
	}

	other := Derive(testIdentity("other-program"), NamespaceProfile, owners[0])
	record(other, "other-program/profile")
}

func TestDerive_IndexIsBigEndianSeed(t *testing.T) {
	program := testIdentity("program")
	owner := testIdentity("alice")

	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], 258)
	want, _ := FindProgramAddress(program, []byte("post"), owner[:], idx[:])

	assert.Equal(t, want, Derive(program, NamespacePost, owner, 258))
}

func TestFindProgramAddress_OffCurveAndBumpReproduces(t *testing.T) {
	program := testIdentity("program")
	owner := testIdentity("carol")

	addr, bump := FindProgramAddress(program, []byte("profile"), owner[:])
	assert.False(t, isOnCurve(addr[:]))

	again, ok := createProgramAddress(program, []byte("profile"), owner[:], []byte{bump})
	require.True(t, ok)
	assert.Equal(t, addr, again)
}

func TestDeriver_Range(t *testing.T) {
	d := NewDeriver(testIdentity("program"))
	owner := testIdentity("dave")

	addrs := d.Range(NamespaceFollow, owner, 3)
	require.Len(t, addrs, 3)
	for i, addr := range addrs {
		assert.Equal(t, d.Follow(owner, uint64(i)), addr)
	}
	assert.Empty(t, d.Range(NamespaceFollow, owner, 0))
}

func TestDeriver_RangeBeyondPrealloc(t *testing.T) {
	d := NewDeriver(testIdentity("program"))
	owner := testIdentity("dave")

	n := uint64(rangePrealloc + 5)
	addrs := d.Range(NamespacePost, owner, n)
	require.Len(t, addrs, int(n))
	assert.Equal(t, d.Post(owner, n-1), addrs[n-1])
	assert.Equal(t, 3, cap(d.Range(NamespacePost, owner, 3)))
}

func TestIdentity_TextRoundTrip(t *testing.T) {
	id := testIdentity("erin")

	parsed, err := ParseIdentity(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseIdentity("abc")
	assert.Error(t, err)

	assert.True(t, Identity{}.IsZero())
	assert.False(t, id.IsZero())
}
