package models

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrContentHasNoDestinations is returned when a publish is requested
	// without any destination
	ErrContentHasNoDestinations = errors.New("content has no destinations")

	// ErrDestinationDisabled is returned when a destination is configured off
	ErrDestinationDisabled = errors.New("destination is disabled")

	// ErrUnknownDestination is returned for a destination name with no client
	ErrUnknownDestination = errors.New("unknown destination")

	// ErrMissingCredentials is returned when the token provider has no
	// credentials for a destination
	ErrMissingCredentials = errors.New("missing destination credentials")
)
