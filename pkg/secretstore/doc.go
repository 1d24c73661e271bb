// Package secretstore defines the contract dbrotate needs from a secret storage system.
//
// A store is treated as an opaque key-value system: a secret id maps to a single string
// payload. dbrotate reads the payload, rewrites the credential inside it and writes the full
// payload back. Access policy, versioning and rotation schedules stay with the store.
//
// # Implementing a Secret Store
//
// Implementations live in internal/stores and wrap a cloud SDK client behind a narrow
// interface so tests can inject a fake:
//
//	type MyStore struct {
//	    client MyClientAPI
//	    name   string
//	}
//
//	func (s *MyStore) Fetch(ctx context.Context, id string) (string, error) {
//	    value, err := s.client.Get(ctx, id)
//	    if err != nil {
//	        if isNotFound(err) {
//	            return "", NotFoundError{Store: s.name, Path: id}
//	        }
//	        return "", err
//	    }
//	    return value, nil
//	}
//
// Errors should use NotFoundError and AuthError where the backend makes the distinction,
// so operators get the same messages across stores.
package secretstore
