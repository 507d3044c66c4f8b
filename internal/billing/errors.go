package billing

import "errors"

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrAlreadyActive      = errors.New("billing timer already active")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrNotFound           = errors.New("billing session not found")
	ErrInvalidInput       = errors.New("invalid input")
)
