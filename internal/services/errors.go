package services

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePhone   = errors.New("phone number already registered")
	ErrUnknownPhone     = errors.New("phone number not registered")
	ErrBadCredential    = errors.New("invalid password")
	ErrUnknownAlert     = errors.New("alert not found")
	ErrUnknownUser      = errors.New("user not found")
	ErrInvalidAlertType = errors.New("invalid alert type")
	ErrPasswordTooLong  = errors.New("password exceeds 72 bytes")
	// ErrStorage wraps every persistence failure on a write path
	ErrStorage = errors.New("storage error")
)

// storageErr marks err as a storage failure while keeping the cause inspectable
func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorage, err)
}
