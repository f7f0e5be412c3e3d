package risk

import "errors"

// ErrMalformedDate is returned by ParseDate for values that are not dates.
var ErrMalformedDate = errors.New("malformed date input")
