package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrEmpty is returned when an empty secret is sealed
var ErrEmpty = errors.New("secret is empty")

// ErrDestroyed is returned when a destroyed credential is used
var ErrDestroyed = errors.New("credential has been destroyed")

// Credential is a secret sealed in a memguard enclave.
// It is safe for concurrent use.
type Credential struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// NewCredential seals data. The source slice is wiped.
func NewCredential(data []byte) (*Credential, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	// NewEnclave wipes data after copying it
	return &Credential{enclave: memguard.NewEnclave(data)}, nil
}

// Use decrypts the secret and passes it to fn. The decrypted buffer is destroyed
// when fn returns; fn must not retain the string.
func (c *Credential) Use(fn func(secret string) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.enclave == nil {
		return ErrDestroyed
	}

	locked, err := c.enclave.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.String())
}

// Destroy drops the enclave. It is idempotent.
func (c *Credential) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enclave = nil
}

// String never reveals the secret
func (c *Credential) String() string {
	return "[REDACTED]"
}

// GoString never reveals the secret
func (c *Credential) GoString() string {
	return "[REDACTED]"
}

// Purge wipes every memguard buffer of the process
func Purge() {
	memguard.Purge()
}
