package handparse

import "errors"

// ErrMalformed is returned when an entire input file yields no hand ID and
// no Hero seat at all. A single malformed hand inside an otherwise good
// file is skipped with a WARN log instead, not an error.
var ErrMalformed = errors.New("handparse: no hand ID or Hero seat found in input")
