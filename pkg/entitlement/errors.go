package entitlement

import "errors"

var (
	ErrRecordNotFound      = errors.New("entitlement record not found")
	ErrRecordAlreadyExists = errors.New("entitlement record already exists")
	ErrEmailRequired       = errors.New("entitlement record email is required")
)
