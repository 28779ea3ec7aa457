package domain

import "errors"

var (
	// ErrWatchNotFound is returned when a watch id does not exist.
	ErrWatchNotFound = errors.New("watch not found")

	// ErrDuplicateOrderID is returned when creating a watch with an
	// order id that is already in use.
	ErrDuplicateOrderID = errors.New("duplicate order id")

	// ErrInvalidOrderID is returned for empty order ids.
	ErrInvalidOrderID = errors.New("order id must not be empty")

	// ErrInvalidAddress is returned for addresses that are not valid
	// TRON base58 addresses.
	ErrInvalidAddress = errors.New("invalid tron address")

	// ErrInvalidAmount is returned for non-positive expected amounts.
	ErrInvalidAmount = errors.New("expected amount must be positive")

	// ErrInvalidCallbackURL is returned for callback URLs that are not
	// absolute http(s) URLs.
	ErrInvalidCallbackURL = errors.New("invalid callback url")
)
