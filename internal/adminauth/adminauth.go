// Package adminauth obtains the administrative database password before any connection
// is opened. The password comes from a non-echoing terminal prompt or from the OS keyring
// and is handed out sealed in a secure.Credential.
package adminauth

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/secure"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// Source yields the admin password
type Source interface {
	Password() (*secure.Credential, error)
}

// readPassword is a test seam for term.ReadPassword
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal
var isTerminal = term.IsTerminal

// Prompt asks for the password on the controlling terminal
type Prompt struct {
	User string
	In   *os.File
	Out  io.Writer
}

// NewPrompt prompts on stdin/stderr for user's password
func NewPrompt(user string) *Prompt {
	return &Prompt{User: user, In: os.Stdin, Out: os.Stderr}
}

// Password prints "Password for <user>: " and reads without echo
func (p *Prompt) Password() (*secure.Credential, error) {
	fd := int(p.In.Fd())
	if !isTerminal(fd) {
		return nil, dserrors.UserError{
			Message:    "Cannot prompt for the admin password: stdin is not a terminal",
			Suggestion: "Run interactively, or set ADMIN_PASSWORD_SOURCE=keyring",
		}
	}

	if _, err := fmt.Fprintf(p.Out, "Password for %s: ", p.User); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	cred, err := secure.NewCredential(pw)
	if errors.Is(err, secure.ErrEmpty) {
		return nil, dserrors.UserError{
			Message:    "Empty admin password",
			Suggestion: fmt.Sprintf("Enter the password of %s", p.User),
		}
	}
	return cred, err
}

// Keyring reads the password stored under Service / Account in the OS keyring
type Keyring struct {
	Service string
	Account string
}

// Password looks the secret up with go-keyring
func (k *Keyring) Password() (*secure.Credential, error) {
	secret, err := keyring.Get(k.Service, k.Account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, dserrors.UserError{
				Message:    fmt.Sprintf("No keyring entry for %s in service %s", k.Account, k.Service),
				Suggestion: fmt.Sprintf("Store it first, e.g. 'secret-tool store --label=dbrotate service %s username %s'", k.Service, k.Account),
				Err:        err,
			}
		}
		return nil, dserrors.UserError{
			Message:    "Failed to read the admin password from the OS keyring",
			Details:    err.Error(),
			Suggestion: "Check that a Secret Service (gnome-keyring, KWallet) or Keychain is available",
			Err:        err,
		}
	}
	if strings.TrimSpace(secret) == "" {
		return nil, dserrors.UserError{Message: fmt.Sprintf("Keyring entry for %s is empty", k.Account)}
	}
	return secure.NewCredential([]byte(secret))
}

// NewSource returns the source named by kind ("prompt" or "keyring")
func NewSource(kind, user, service string) (Source, error) {
	switch kind {
	case "prompt", "":
		return NewPrompt(user), nil
	case "keyring":
		return &Keyring{Service: service, Account: user}, nil
	default:
		return nil, dserrors.ConfigError{
			Field:      "admin_password_source",
			Value:      kind,
			Message:    "unknown admin password source",
			Suggestion: "Use 'prompt' or 'keyring'",
		}
	}
}
