package services

import "errors"

// ErrValidation indicates a missing or malformed required field.
var ErrValidation = errors.New("validation failed")

// ErrInvalidCredentials is returned for both an unknown username and a
// wrong password, so a login failure never reveals which part was wrong.
var ErrInvalidCredentials = errors.New("invalid username or password")
