package secretstore

import "context"

// Store reads and replaces whole secret payloads.
type Store interface {
	// Name returns the configured store type, e.g. "aws.secretsmanager".
	Name() string

	// Fetch returns the current payload stored under id.
	Fetch(ctx context.Context, id string) (string, error)

	// Put replaces the payload stored under id. The secret must already exist.
	Put(ctx context.Context, id string, payload string) error
}

// NotFoundError indicates that the secret id does not exist in the store.
type NotFoundError struct {
	// Store is the name of the secret store where the secret was not found.
	Store string

	// Path is the secret id that could not be found.
	Path string
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	return "secret not found: " + e.Path + " in store " + e.Store
}

// AuthError indicates that authentication or authorization against the store failed.
type AuthError struct {
	// Store is the name of the secret store that failed authentication.
	Store string

	// Message provides details about the authentication failure.
	Message string
}

// Error implements the error interface.
func (e AuthError) Error() string {
	return "authentication failed for store " + e.Store + ": " + e.Message
}

// ValidationError indicates that a request or configuration is invalid.
type ValidationError struct {
	// Store is the name of the secret store where validation failed.
	// May be empty for general validation errors.
	Store string

	// Message provides details about what validation failed.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Store == "" {
		return "validation failed: " + e.Message
	}
	return "validation failed for store " + e.Store + ": " + e.Message
}
