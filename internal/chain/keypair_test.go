package chain_test

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/records"
)

func testKeypair(seed string) *chain.Keypair {
	s := sha256.Sum256([]byte(seed))
	return chain.NewKeypair(ed25519.NewKeyFromSeed(s[:]))
}

func TestLoadKeypair(t *testing.T) {
	kp := testKeypair("alice")
	priv := ed25519.NewKeyFromSeed(func() []byte { s := sha256.Sum256([]byte("alice")); return s[:] }())
	ints := make([]int, len(priv))
	for i, b := range priv {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := chain.LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Identity(), loaded.Identity())

	require.NoError(t, os.WriteFile(path, []byte("[1,2,3]"), 0o600))
	_, err = chain.LoadKeypair(path)
	assert.Error(t, err)
}

func TestKeypairSigner_SignsCompiledMessage(t *testing.T) {
	kp := testKeypair("alice")
	owner := kp.Identity()
	d := ledger.NewDeriver(ledger.Identity(testAddress("program")))
	ix, err := records.CreateProfile(d, owner, "alice")
	require.NoError(t, err)

	bh := sha256.Sum256([]byte("blockhash"))
	signer := chain.NewKeypairSigner(kp)
	tx, err := signer.SignTransaction(context.Background(), ix, owner, base58.Encode(bh[:]))
	require.NoError(t, err)

	require.Equal(t, byte(1), tx[0], "one signature")
	sig, msg := tx[1:65], tx[65:]
	assert.True(t, ed25519.Verify(ed25519.PublicKey(owner[:]), msg, sig))

	// Header: one signer, no readonly signers, system program and program readonly.
	assert.Equal(t, []byte{1, 0, 2}, msg[:3])
	assert.Equal(t, byte(4), msg[3], "owner, profile, system program, program")
	assert.Equal(t, owner[:], msg[4:36], "fee payer first")
	keysEnd := 4 + 4*32
	assert.Equal(t, bh[:], msg[keysEnd:keysEnd+32])

	ixStart := keysEnd + 32
	assert.Equal(t, byte(1), msg[ixStart], "one instruction")
	assert.Equal(t, byte(3), msg[ixStart+1], "program is the last key")
	assert.Equal(t, []byte{3, 1, 0, 2}, msg[ixStart+2:ixStart+6], "profile, owner, system")
	assert.Equal(t, byte(len(ix.Data)), msg[ixStart+6])
	assert.Equal(t, ix.Data, msg[ixStart+7:])
}

func TestKeypairSigner_Errors(t *testing.T) {
	kp := testKeypair("alice")
	d := ledger.NewDeriver(ledger.Identity(testAddress("program")))
	ix, err := records.CreateProfile(d, kp.Identity(), "alice")
	require.NoError(t, err)
	bh := sha256.Sum256([]byte("blockhash"))

	_, err = chain.NewKeypairSigner().SignTransaction(context.Background(), ix, kp.Identity(), base58.Encode(bh[:]))
	assert.Error(t, err, "missing key")

	_, err = chain.NewKeypairSigner(kp).SignTransaction(context.Background(), ix, kp.Identity(), "not-a-hash")
	assert.Error(t, err)
}
