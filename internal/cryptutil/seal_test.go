package cryptutil_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/ardanlabs/sealedger/internal/cryptutil"
)

func Test_WrapUnwrapKey_RoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating rsa key: %s", err)
	}

	aesKey := make([]byte, cryptutil.AESKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		t.Fatalf("generating aes key: %s", err)
	}

	wrapped, err := cryptutil.WrapKey(&priv.PublicKey, aesKey)
	if err != nil {
		t.Fatalf("wrapping key: %s", err)
	}

	if len(wrapped) != cryptutil.KeySizeBytes(&priv.PublicKey) {
		t.Fatalf("expected wrapped key length %d, got %d", cryptutil.KeySizeBytes(&priv.PublicKey), len(wrapped))
	}

	unwrapped, err := cryptutil.UnwrapKey(priv, wrapped)
	if err != nil {
		t.Fatalf("unwrapping key: %s", err)
	}

	if !bytes.Equal(aesKey, unwrapped) {
		t.Fatal("expected unwrapped key to match the original aes key")
	}
}

func Test_SealOpenAESGCM_RoundTrip(t *testing.T) {
	key := make([]byte, cryptutil.AESKeySize)
	iv := make([]byte, cryptutil.GCMIVSize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %s", err)
	}
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("generating iv: %s", err)
	}

	plaintext := []byte("hello, sealed ledger")

	ciphertext, err := cryptutil.SealAESGCM(key, iv, plaintext)
	if err != nil {
		t.Fatalf("sealing: %s", err)
	}

	if len(ciphertext) < cryptutil.GCMTagSize {
		t.Fatalf("expected ciphertext to at least contain the auth tag, got %d bytes", len(ciphertext))
	}

	got, err := cryptutil.OpenAESGCM(key, iv, ciphertext)
	if err != nil {
		t.Fatalf("opening: %s", err)
	}

	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q, want %q", got, plaintext)
	}
}

func Test_OpenAESGCM_WrongKeyFails(t *testing.T) {
	key := make([]byte, cryptutil.AESKeySize)
	otherKey := make([]byte, cryptutil.AESKeySize)
	iv := make([]byte, cryptutil.GCMIVSize)
	rand.Read(key)
	rand.Read(otherKey)
	rand.Read(iv)

	ciphertext, err := cryptutil.SealAESGCM(key, iv, []byte("secret"))
	if err != nil {
		t.Fatalf("sealing: %s", err)
	}

	if _, err := cryptutil.OpenAESGCM(otherKey, iv, ciphertext); err == nil {
		t.Fatal("expected decryption under the wrong key to fail")
	}
}
