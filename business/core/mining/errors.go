package mining

import "errors"

// Set of sentinel errors returned by commit_block's validation pipeline, in
// the order the pipeline checks them. Handlers map each to the v1
// request-error taxonomy.
var (
	ErrCreatorMissing  = errors.New("creator-missing")
	ErrSignatureInvalid = errors.New("signature-invalid")
	ErrPoWFailed        = errors.New("pow-failed")
	ErrHashMismatch     = errors.New("hash-mismatch")
	ErrShapeInvalid     = errors.New("shape-invalid")
	ErrTipMoved         = errors.New("tip-moved")
)
