package cryptutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// AESKeySize is the size, in bytes, of the symmetric key wrapped for each
// block (AES-256).
const AESKeySize = 32

// GCMIVSize is the size, in bytes, of the AES-GCM nonce carried as data_iv.
const GCMIVSize = 16

// GCMTagSize is the size, in bytes, of the AES-GCM authentication tag
// appended to every ciphertext.
const GCMTagSize = 16

// WrapKey encrypts a raw AES-256 key under the creator's RSA public key
// using OAEP with SHA-256, producing encrypted_data_key.
func WrapKey(pub *rsa.PublicKey, aesKey []byte) ([]byte, error) {
	if len(aesKey) != AESKeySize {
		return nil, fmt.Errorf("cryptutil: aes key must be %d bytes, got %d", AESKeySize, len(aesKey))
	}

	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
}

// UnwrapKey decrypts encrypted_data_key under the creator's RSA private key,
// recovering the raw AES-256 key. Only ever exercised by tests and by the
// offline client this system never runs; the server never sees private
// keys.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
}

// SealAESGCM encrypts plaintext with AES-256-GCM under key and a
// GCMIVSize-byte IV, returning ciphertext with the authentication tag
// appended, matching encrypted_data's on-disk shape.
func SealAESGCM(key, iv, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != GCMIVSize {
		return nil, fmt.Errorf("cryptutil: iv must be %d bytes, got %d", GCMIVSize, len(iv))
	}

	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// OpenAESGCM decrypts ciphertext (with trailing auth tag) under key and iv,
// recovering the original plaintext.
func OpenAESGCM(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != GCMIVSize {
		return nil, fmt.Errorf("cryptutil: iv must be %d bytes, got %d", GCMIVSize, len(iv))
	}

	return gcm.Open(nil, iv, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("cryptutil: key must be %d bytes, got %d", AESKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewGCMWithNonceSize(block, GCMIVSize)
}
