package cryptutil_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/ardanlabs/sealedger/internal/cryptutil"
)

func generateTestKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		t.Fatalf("generating rsa key: %s", err)
	}

	return priv
}

func publicKeyPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshaling public key: %s", err)
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func Test_SignAndVerifyBlockHash(t *testing.T) {
	priv := generateTestKey(t, 2048)
	blockHash := cryptutil.BlockHash("some canonical input")

	sig, err := cryptutil.SignBlockHash(priv, blockHash)
	if err != nil {
		t.Fatalf("signing block hash: %s", err)
	}

	if err := cryptutil.VerifyBlockHashSignature(&priv.PublicKey, blockHash, sig); err != nil {
		t.Fatalf("expected signature to verify: %s", err)
	}
}

func Test_VerifyBlockHashSignature_Tampered(t *testing.T) {
	priv := generateTestKey(t, 2048)
	blockHash := cryptutil.BlockHash("some canonical input")

	sig, err := cryptutil.SignBlockHash(priv, blockHash)
	if err != nil {
		t.Fatalf("signing block hash: %s", err)
	}

	sig[0] ^= 0xff

	if err := cryptutil.VerifyBlockHashSignature(&priv.PublicKey, blockHash, sig); err == nil {
		t.Fatal("expected tampered signature to fail verification")
	}
}

func Test_ParsePublicKeyPEM(t *testing.T) {
	priv := generateTestKey(t, 2048)
	pemStr := publicKeyPEM(t, &priv.PublicKey)

	pub, err := cryptutil.ParsePublicKeyPEM(pemStr)
	if err != nil {
		t.Fatalf("parsing public key pem: %s", err)
	}

	if cryptutil.KeySizeBytes(pub) != 256 {
		t.Fatalf("expected a 256 byte modulus for a 2048 bit key, got %d", cryptutil.KeySizeBytes(pub))
	}
}

func Test_ParsePublicKeyPEM_TooSmall(t *testing.T) {
	priv := generateTestKey(t, 1024)
	pemStr := publicKeyPEM(t, &priv.PublicKey)

	if _, err := cryptutil.ParsePublicKeyPEM(pemStr); err != cryptutil.ErrKeyTooSmall {
		t.Fatalf("expected ErrKeyTooSmall, got %v", err)
	}
}
