package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrConflict is returned when a resource was modified by someone else since it was read.
	ErrConflict = errors.New("version conflict")
	// ErrFatal is returned when a lifecycle operation can't be recovered.
	ErrFatal = errors.New("fatal")
	// ErrContractViolation is returned when an operation is used in a way it must never be.
	ErrContractViolation = errors.New("contract violation")
)
