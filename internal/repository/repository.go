// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres) and return either raw driver
// errors or the sentinels below; translating them is the service layer's job.
package repository

import "errors"

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a conditional version append lost a race.
	ErrVersionConflict = errors.New("document version changed concurrently")
	// ErrTokenTaken is returned when a QR token collides with an existing one.
	ErrTokenTaken = errors.New("qr token already exists")
	// ErrAlreadyBound is returned when a document already has an active QR binding.
	ErrAlreadyBound = errors.New("document already has an active qr binding")
	// ErrInvalidFilter is returned for filters or sort keys outside a FilterSpec.
	ErrInvalidFilter = errors.New("invalid filter")
)

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
