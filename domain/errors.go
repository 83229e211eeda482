package domain

import "errors"

// ErrForbidden is returned when the caller's scope does not cover the
// requested branch. Nothing is computed in that case.
var ErrForbidden = errors.New("branch out of caller scope")
