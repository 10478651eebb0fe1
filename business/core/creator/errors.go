package creator

import "errors"

// Set of error values returned by the creator core. Handlers translate
// these into the v1 request-error taxonomy.
var (
	ErrNotFound        = errors.New("creator not found")
	ErrDisplayNameTaken = errors.New("display_name already registered")
	ErrInvalidPublicKey = errors.New("public_key_pem does not parse as an RSA public key")
	ErrKeyTooSmall      = errors.New("rsa public key smaller than minimum bit size")
)
