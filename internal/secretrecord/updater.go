package secretrecord

import (
	"context"
	"fmt"
	"strings"

	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/mode"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// Request describes one secret update
type Request struct {
	SecretID string
	Encoding Encoding
	Fields   Fields
	Username string
	Password string
}

// Updater propagates a rotated password into the secret store
type Updater struct {
	store    secretstore.Store
	logger   *logging.Logger
	readBack bool
}

// UpdaterOption configures an Updater
type UpdaterOption func(*Updater)

// WithoutReadBack skips re-fetching the payload after a write
func WithoutReadBack() UpdaterOption {
	return func(u *Updater) {
		u.readBack = false
	}
}

// NewUpdater creates an Updater writing through store
func NewUpdater(store secretstore.Store, logger *logging.Logger, opts ...UpdaterOption) *Updater {
	u := &Updater{
		store:    store,
		logger:   logger,
		readBack: true,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update fetches the payload for req.SecretID, rewrites the credential and stores it back.
// In dry-run the new payload is computed and logged with the password redacted, and nothing
// is written. Every failure is logged here and returned as a StepError; callers record it
// and carry on with the next target.
func (u *Updater) Update(ctx context.Context, req Request, m mode.Mode) error {
	current, err := u.store.Fetch(ctx, req.SecretID)
	if err != nil {
		err = dserrors.SecretFetchError(req.SecretID, err)
		u.logger.Error("Error fetching secret %s: %v", req.SecretID, err)
		return err
	}

	rewritten, err := Rewrite(current, req.Encoding, req.Fields, req.Username, req.Password)
	if err != nil {
		err = dserrors.SecretParseError(req.SecretID, err)
		u.logger.Error("Secret %s cannot be updated: %v", req.SecretID, err)
		return err
	}

	if m.IsDryRun() {
		u.logger.DryRun("Would update secret %s (%s, changed keys: %s) with:\n%s",
			req.SecretID, req.Encoding, changedList(rewritten.ChangedKeys),
			logging.Redact(rewritten.Payload, []string{req.Password}))
		return nil
	}

	if err := u.store.Put(ctx, req.SecretID, rewritten.Payload); err != nil {
		err = dserrors.SecretStoreError(req.SecretID, err)
		u.logger.Error("Unable to update secret %s: %v", req.SecretID, err)
		return err
	}

	if u.readBack {
		stored, err := u.store.Fetch(ctx, req.SecretID)
		if err != nil {
			err = dserrors.SecretStoreError(req.SecretID, fmt.Errorf("read-back failed: %w", err))
			u.logger.Error("Updated secret %s but could not read it back: %v", req.SecretID, err)
			return err
		}
		if stored != rewritten.Payload {
			err = dserrors.SecretStoreError(req.SecretID, fmt.Errorf("read-back payload differs from the written payload"))
			u.logger.Error("Secret %s does not hold the rotated credential: %v", req.SecretID, err)
			return err
		}
	}

	u.logger.Info("Updated secret %s in %s", req.SecretID, u.store.Name())
	return nil
}

func changedList(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	return strings.Join(keys, ", ")
}
