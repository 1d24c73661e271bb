package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context.
// It is always fatal and is raised before anything is mutated.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// Step failure kinds. Match them with errors.Is.
var (
	ErrSecretFetch  = errors.New("secret fetch failed")
	ErrSecretParse  = errors.New("secret payload invalid")
	ErrSecretStore  = errors.New("secret store failed")
	ErrRoleRotation = errors.New("role rotation failed")
)

// StepError is a failure of one rotation step for one target. It never aborts a run.
type StepError struct {
	Kind     error
	Target   string
	Resource string
	Err      error
}

func (e *StepError) Error() string {
	msg := e.Kind.Error()
	if e.Resource != "" {
		msg += fmt.Sprintf(" for %s", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SecretFetchError wraps a failure to read secretID from the store
func SecretFetchError(secretID string, err error) error {
	return &StepError{Kind: ErrSecretFetch, Resource: secretID, Err: err}
}

// SecretParseError wraps a payload that is not JSON or has the wrong shape
func SecretParseError(secretID string, err error) error {
	return &StepError{Kind: ErrSecretParse, Resource: secretID, Err: err}
}

// SecretStoreError wraps a failure to write secretID back to the store
func SecretStoreError(secretID string, err error) error {
	return &StepError{Kind: ErrSecretStore, Resource: secretID, Err: err}
}

// RoleRotationError wraps any SQL failure of the create/alter/grant sequence
func RoleRotationError(username string, err error) error {
	return &StepError{Kind: ErrRoleRotation, Target: username, Resource: fmt.Sprintf("role %q", username), Err: err}
}

// StoreError enhances secret store errors with context
func StoreError(storeType string, operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s error during %s", storeType, operation),
		Suggestion: getStoreSuggestion(storeType, err),
		Err:        err,
	}
}

// getStoreSuggestion returns helpful suggestions based on store type and error
func getStoreSuggestion(storeType string, err error) string {
	errStr := err.Error()

	switch storeType {
	case "aws.secretsmanager", "aws.ssm":
		if strings.Contains(errStr, "AccessDenied") {
			return "Check IAM permissions for secretsmanager:GetSecretValue / UpdateSecret (or ssm:GetParameter / PutParameter)"
		}
		if strings.Contains(errStr, "ResourceNotFoundException") || strings.Contains(errStr, "ParameterNotFound") {
			return "Verify the secret id and region. List secrets with: 'aws secretsmanager list-secrets'"
		}
		if strings.Contains(errStr, "credentials") {
			return "Configure AWS credentials: 'aws configure' or set AWS_PROFILE"
		}
		if strings.Contains(errStr, "ThrottlingException") {
			return "AWS rate limit exceeded. Wait a moment and run again"
		}

	case "gcp.secretmanager":
		if strings.Contains(errStr, "PermissionDenied") {
			return "Grant roles/secretmanager.secretAccessor and roles/secretmanager.secretVersionAdder"
		}
		if strings.Contains(errStr, "NotFound") {
			return "Verify the secret exists in the configured project"
		}

	case "azure.keyvault":
		if strings.Contains(errStr, "Forbidden") {
			return "Check the Key Vault access policy allows get and set on secrets"
		}
		if strings.Contains(errStr, "SecretNotFound") {
			return "Verify the secret name exists in the vault"
		}
	}

	if strings.Contains(errStr, "timeout") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check your network and secret store configuration"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	var userErr UserError
	var cfgErr ConfigError
	if errors.As(err, &userErr) || errors.As(err, &cfgErr) {
		return err
	}

	errStr := err.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "password authentication failed") {
		return UserError{
			Message:    "Database rejected the administrative credentials",
			Suggestion: "Check PG_USER and the password you entered",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	return err
}
