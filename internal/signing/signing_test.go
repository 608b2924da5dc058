package signing

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeedHex(t *testing.T) string {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	seed := priv.Seed()
	_ = pub
	return hex.EncodeToString(seed)
}

func TestSignTxBCSEd25519ProducesVerifiableSignature(t *testing.T) {
	seedHex := testSeedHex(t)
	txBCS := []byte("fake-transaction-data")

	signed, err := SignTxBCSEd25519(txBCS, seedHex)
	require.NoError(t, err)
	require.Len(t, signed.Serialized, 1+64+32)
	assert.Equal(t, byte(0x00), signed.Serialized[0])

	sig := signed.Serialized[1:65]
	pub := signed.Serialized[65:]
	assert.Equal(t, signed.PublicKey[:], pub)

	intent := append([]byte{0x00, 0x00, 0x00}, txBCS...)
	digest := Blake2b256(intent)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig))
}

func TestSignTxBCSEd25519RejectsBadHex(t *testing.T) {
	_, err := SignTxBCSEd25519([]byte("x"), "not-hex")
	assert.Error(t, err)
}

func TestSignTxBCSEd25519RejectsWrongKeyLength(t *testing.T) {
	_, err := SignTxBCSEd25519([]byte("x"), hex.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestSignTxBCSMultiEd25519SignsWithEachKeyInOrder(t *testing.T) {
	seedA := testSeedHex(t)
	seedB := testSeedHex(t)

	sigs, err := SignTxBCSMultiEd25519([]byte("tx"), []string{seedA, seedB})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.NotEqual(t, sigs[0], sigs[1])
}

func TestSerializeSignatureB64IsUnpadded(t *testing.T) {
	seedHex := testSeedHex(t)
	signed, err := SignTxBCSEd25519([]byte("tx"), seedHex)
	require.NoError(t, err)

	encoded := SerializeSignatureB64(signed.Serialized)
	assert.NotContains(t, encoded, "=")
}
