package cryptutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// MinKeyBits is the minimum accepted RSA modulus size for creator keys.
const MinKeyBits = 2048

// ErrKeyTooSmall is returned by ParsePublicKeyPEM when the modulus is
// narrower than MinKeyBits.
var ErrKeyTooSmall = fmt.Errorf("rsa public key smaller than %d bits", MinKeyBits)

// ParsePublicKeyPEM decodes a PEM-encoded RSA public key (PKIX or PKCS#1)
// and validates its modulus size.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("cryptutil: invalid PEM block")
	}

	pub, err := parseAnyPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	if pub.Size()*8 < MinKeyBits {
		return nil, ErrKeyTooSmall
	}

	return pub, nil
}

func parseAnyPublicKey(der []byte) (*rsa.PublicKey, error) {
	if pub, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return pub, nil
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptutil: parsing public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("cryptutil: public key is not RSA")
	}

	return rsaPub, nil
}

// KeySizeBytes returns the RSA modulus size, in bytes, for the given key
// (256 for a 2048-bit key).
func KeySizeBytes(pub *rsa.PublicKey) int {
	return pub.Size()
}

// SignBlockHash signs the ASCII hex bytes of a block hash using
// RSASSA-PKCS1-v1_5 with SHA-256, the way a client signs a mined block
// before submitting it for commit.
func SignBlockHash(priv *rsa.PrivateKey, blockHash string) ([]byte, error) {
	digest := sha256.Sum256([]byte(blockHash))
	return rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
}

// VerifyBlockHashSignature verifies that signature was produced by the
// holder of pub's private key over the ASCII hex bytes of blockHash.
func VerifyBlockHashSignature(pub *rsa.PublicKey, blockHash string, signature []byte) error {
	digest := sha256.Sum256([]byte(blockHash))
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
}
