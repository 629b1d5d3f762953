package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient credit balance")
	ErrAdmissionLimitReached = errors.New("concurrent generation limit reached")
	ErrDispatchFailure       = errors.New("workflow dispatch failed")
	ErrEngineUnreachable     = errors.New("workflow engine unreachable")
	ErrAlreadyTerminal       = errors.New("generation already terminal")
	ErrAlreadyRefunded       = errors.New("generation already refunded")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnknownFlow           = errors.New("unknown flow")
)

// AdmissionError reports the counts behind a rejected admission.
type AdmissionError struct {
	Current int64
	Maximum int
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("%s (%d/%d)", ErrAdmissionLimitReached.Error(), e.Current, e.Maximum)
}

func (e *AdmissionError) Is(target error) bool {
	return target == ErrAdmissionLimitReached
}

// InsufficientBalanceError carries the balance observed at debit time.
type InsufficientBalanceError struct {
	Balance  int64
	Required int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s (have %d, need %d)", ErrInsufficientBalance.Error(), e.Balance, e.Required)
}

func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
