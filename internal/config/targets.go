package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/secretrecord"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// maxIdentifierLength is PostgreSQL's NAMEDATALEN - 1. Longer role names are silently
// truncated by the server, which would desynchronise the secret from the role.
const maxIdentifierLength = 63

// Target is one rotation unit: a database role and the secret that carries its credential.
type Target struct {
	Username string
	SecretID string
	Encoding secretrecord.Encoding
	Fields   secretrecord.Fields
}

// DefaultTargets returns the built-in target list. The username matches the IAM role of
// the backend task so IAM database authentication can replace passwords later.
func DefaultTargets(s *Settings) []Target {
	return []Target{
		{
			Username: fmt.Sprintf("aw-%s-global-%s-iamrole-task-backend", s.ProjectTag, s.EnvironmentTag),
			SecretID: fmt.Sprintf("aw-%s-%s-secret-postgres_details", s.ProjectTag, s.EnvironmentTag),
			Encoding: secretrecord.FieldPair,
			Fields:   secretrecord.DefaultFields(),
		},
	}
}

// targetsSchema validates the targets file before it is decoded
const targetsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["targets"],
  "additionalProperties": false,
  "properties": {
    "targets": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["username", "secret_id", "encoding"],
        "additionalProperties": false,
        "properties": {
          "username":     {"type": "string", "minLength": 1},
          "secret_id":    {"type": "string", "minLength": 1},
          "encoding":     {"type": "string", "enum": ["field-pair", "connection-uri"]},
          "username_key": {"type": "string", "minLength": 1},
          "password_key": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

type targetsFile struct {
	Targets []targetEntry `yaml:"targets"`
}

type targetEntry struct {
	Username    string `yaml:"username"`
	SecretID    string `yaml:"secret_id"`
	Encoding    string `yaml:"encoding"`
	UsernameKey string `yaml:"username_key"`
	PasswordKey string `yaml:"password_key"`
}

// tagValues are available to username and secret_id as {{ .Project }}, {{ .Region }}
// and {{ .Environment }}.
type tagValues struct {
	Project     string
	Region      string
	Environment string
}

// LoadTargets reads a YAML targets file, validates it and expands tag placeholders.
func LoadTargets(path string, s *Settings) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dserrors.ConfigError{
				Field:      "targets",
				Value:      path,
				Message:    "targets file not found",
				Suggestion: "Drop --targets to rotate the built-in target list",
			}
		}
		return nil, fmt.Errorf("failed to read targets file: %w", err)
	}
	return ParseTargets(data, s)
}

// ParseTargets validates and decodes targets file content
func ParseTargets(data []byte, s *Settings) ([]Target, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, dserrors.ConfigError{
			Field:      "targets",
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(targetsSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("targets schema validation error: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, dserrors.ConfigError{
			Field:      "targets",
			Message:    strings.Join(problems, "; "),
			Suggestion: "Each target needs username, secret_id and encoding (field-pair or connection-uri)",
		}
	}

	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode targets file: %w", err)
	}

	tags := tagValues{Project: s.ProjectTag, Region: s.RegionTag, Environment: s.EnvironmentTag}
	seen := make(map[string]int)
	targets := make([]Target, 0, len(file.Targets))

	for i, entry := range file.Targets {
		username, err := expand(entry.Username, tags)
		if err != nil {
			return nil, dserrors.ConfigError{Field: fmt.Sprintf("targets[%d].username", i), Value: entry.Username, Message: err.Error()}
		}
		secretID, err := expand(entry.SecretID, tags)
		if err != nil {
			return nil, dserrors.ConfigError{Field: fmt.Sprintf("targets[%d].secret_id", i), Value: entry.SecretID, Message: err.Error()}
		}
		if len(username) > maxIdentifierLength {
			return nil, dserrors.ConfigError{
				Field:   fmt.Sprintf("targets[%d].username", i),
				Value:   username,
				Message: fmt.Sprintf("role names are limited to %d bytes", maxIdentifierLength),
			}
		}
		if prev, dup := seen[username]; dup {
			return nil, dserrors.ConfigError{
				Field:   fmt.Sprintf("targets[%d].username", i),
				Value:   username,
				Message: fmt.Sprintf("duplicates targets[%d]; a role can only be rotated once per run", prev),
			}
		}
		seen[username] = i

		encoding, err := secretrecord.ParseEncoding(entry.Encoding)
		if err != nil {
			return nil, dserrors.ConfigError{Field: fmt.Sprintf("targets[%d].encoding", i), Value: entry.Encoding, Message: err.Error()}
		}

		targets = append(targets, Target{
			Username: username,
			SecretID: secretID,
			Encoding: encoding,
			Fields: secretrecord.Fields{
				UsernameKey: entry.UsernameKey,
				PasswordKey: entry.PasswordKey,
			},
		})
	}

	return targets, nil
}

func expand(text string, tags tagValues) (string, error) {
	tmpl, err := template.New("target").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid placeholder: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tags); err != nil {
		return "", fmt.Errorf("invalid placeholder: %w", err)
	}
	return buf.String(), nil
}
