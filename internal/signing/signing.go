// Package signing implements Sui's transaction signing scheme: a 3-byte
// intent header prepended to BCS-encoded transaction data, hashed with
// Blake2b, and signed with Ed25519.
package signing

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"crypto/ed25519"

	"golang.org/x/crypto/blake2b"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

const (
	intentScopeTransactionData byte = 0x00
	intentVersion              byte = 0x00
	intentAppIDSui             byte = 0x00

	// ed25519SignatureFlag identifies the signature scheme in Sui's
	// serialized signature format (flag || signature || pubkey).
	ed25519SignatureFlag byte = 0x00
)

// Signed is the result of signing a transaction: the serialized signature
// (flag || signature || pubkey, ready for base64 encoding) and the raw
// 32-byte Ed25519 public key.
type Signed struct {
	Serialized []byte
	PublicKey  [32]byte
}

// SignTxBCSEd25519 builds the Sui intent message for txBCS, hashes it
// with Blake2b to 32 bytes, and signs that digest with the Ed25519 key
// given as 32 bytes of hex (a seed, not a full private key).
func SignTxBCSEd25519(txBCS []byte, secretHex string) (Signed, error) {
	seed, err := hex.DecodeString(secretHex)
	if err != nil {
		return Signed{}, fmt.Errorf("%w: bad hex key: %v", aggrerrors.ErrSigning, err)
	}
	if len(seed) != ed25519.SeedSize {
		return Signed{}, fmt.Errorf("%w: key must be %d bytes, got %d", aggrerrors.ErrSigning, ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return Signed{}, fmt.Errorf("%w: failed to derive public key", aggrerrors.ErrSigning)
	}

	intent := make([]byte, 0, 3+len(txBCS))
	intent = append(intent, intentScopeTransactionData, intentVersion, intentAppIDSui)
	intent = append(intent, txBCS...)

	digest := Blake2b256(intent)

	sig := ed25519.Sign(priv, digest[:])

	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, ed25519SignatureFlag)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)

	var pk [32]byte
	copy(pk[:], pub)

	return Signed{Serialized: serialized, PublicKey: pk}, nil
}

// Blake2b256 hashes data with Blake2b-512 and truncates to the first 32
// bytes, matching the original's Blake2b512-then-truncate construction
// rather than using Blake2b-256 directly (the two produce different
// digests since Blake2b's output size is part of its parameter block).
// Exported so the execution engine's idempotency digest uses the same
// construction.
func Blake2b256(data []byte) [32]byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	h.Write(data)
	full := h.Sum(nil)
	var out [32]byte
	copy(out[:], full[:32])
	return out
}

// SerializeSignatureB64 base64-encodes a serialized signature for
// JSON-RPC submission, using unpadded standard base64 to match the
// Sui fullnode JSON-RPC signature encoding.
func SerializeSignatureB64(sig []byte) string {
	return base64.RawStdEncoding.EncodeToString(sig)
}

// SignTxBCSMultiEd25519 signs the same transaction bytes with multiple
// keys in order, for co-signed (e.g. user + sponsor) submissions.
func SignTxBCSMultiEd25519(txBCS []byte, secretKeysHex []string) ([][]byte, error) {
	signatures := make([][]byte, 0, len(secretKeysHex))
	for _, secretHex := range secretKeysHex {
		signed, err := SignTxBCSEd25519(txBCS, secretHex)
		if err != nil {
			return nil, err
		}
		signatures = append(signatures, signed.Serialized)
	}
	return signatures, nil
}
