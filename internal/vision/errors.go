package vision

import "errors"

// ErrAuthMissing is returned by client constructors and by calls made
// without a credential. There is no silent-mock fallback for a
// missing/placeholder credential — no code path in this package returns
// synthesized OCR data instead.
var ErrAuthMissing = errors.New("vision: no credential configured")

// ErrTransient marks a retriable failure (rate limit, network blip, 5xx).
var ErrTransient = errors.New("vision: transient error")

// ErrPermanent marks a non-retriable failure (bad image, 4xx other than
// auth, malformed vendor response).
var ErrPermanent = errors.New("vision: permanent error")

// ErrTimeout marks a per-call timeout. Treated as retriable on the first
// occurrence and a hard failure on the second.
var ErrTimeout = errors.New("vision: call timed out")
