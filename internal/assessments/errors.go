package assessments

import "errors"

// ErrNotFound covers both missing assessments and assessments owned by someone else.
var ErrNotFound = errors.New("assessment not found")
