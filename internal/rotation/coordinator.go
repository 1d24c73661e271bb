// Package rotation drives one rotation run: for every target a new password is
// generated, applied to the database role and then written to the secret store.
package rotation

import (
	"context"
	"os"
	"time"

	"github.com/systmms/dbrotate/internal/config"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/mode"
	"github.com/systmms/dbrotate/internal/roles"
	"github.com/systmms/dbrotate/internal/rotation/storage"
	"github.com/systmms/dbrotate/internal/secretrecord"
)

// State is the position of a target in the rotation protocol
type State string

// Target states. SecretUpdated is the only successful terminal state.
const (
	Pending            State = "pending"
	PasswordGenerated  State = "password_generated"
	RoleRotated        State = "role_rotated"
	SecretUpdated      State = "secret_updated"
	GenerationFailed   State = "generation_failed"
	RoleRotationFailed State = "role_rotation_failed"
	SecretUpdateFailed State = "secret_update_failed"
	Skipped            State = "skipped"
)

// Succeeded reports whether s is the successful terminal state
func (s State) Succeeded() bool {
	return s == SecretUpdated
}

// PasswordGenerator produces one policy-compliant password per call
type PasswordGenerator interface {
	Generate() (string, error)
}

// RoleRotator applies a password to a database role
type RoleRotator interface {
	Rotate(ctx context.Context, username, newPassword string, m mode.Mode) (*roles.Result, error)
}

// SecretUpdater writes a password into the target's secret
type SecretUpdater interface {
	Update(ctx context.Context, req secretrecord.Request, m mode.Mode) error
}

// Options configure a Coordinator. Metrics and History are optional.
type Options struct {
	Generator PasswordGenerator
	Roles     RoleRotator
	Secrets   SecretUpdater
	Logger    *logging.Logger
	Metrics   *Metrics
	History   storage.Storage
	Mode      mode.Mode

	// Recorded in the run journal only
	Host        string
	Database    string
	SecretStore string
}

// Outcome is the final state of one target
type Outcome struct {
	Username string
	SecretID string
	State    State
	Err      error
	Created  bool
	Duration time.Duration
}

// Error returns the failure text, or "" on success
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Report summarises a run
type Report struct {
	Mode       mode.Mode
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []Outcome
}

// Failed counts targets that did not reach SecretUpdated
func (r *Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.State.Succeeded() {
			n++
		}
	}
	return n
}

// Succeeded counts targets that reached SecretUpdated
func (r *Report) Succeeded() int {
	return len(r.Outcomes) - r.Failed()
}

// Coordinator runs the rotation protocol over a list of targets
type Coordinator struct {
	opts Options
	now  func() time.Time
}

// NewCoordinator creates a coordinator
func NewCoordinator(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Coordinator{opts: opts, now: time.Now}
}

// Run processes every target once, in order. A failing target is recorded in the
// report and never stops the run; a role that could not be rotated never gets its
// secret rewritten.
func (c *Coordinator) Run(ctx context.Context, targets []config.Target) *Report {
	logger := c.opts.Logger
	report := &Report{
		Mode:      c.opts.Mode,
		StartedAt: c.now(),
		Outcomes:  make([]Outcome, 0, len(targets)),
	}

	if c.opts.Mode.IsDryRun() {
		logger.DryRun("No changes will be made to the database or the secret store")
	}

	for _, target := range targets {
		outcome := c.rotate(ctx, target)
		report.Outcomes = append(report.Outcomes, outcome)
		if c.opts.Metrics != nil {
			c.opts.Metrics.RecordOutcome(outcome, c.opts.Mode.String())
		}
	}

	report.FinishedAt = c.now()
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordRun(report)
	}
	c.saveHistory(report)

	if failed := report.Failed(); failed > 0 {
		logger.Warn("Rotation finished: %d of %d target(s) failed", failed, len(report.Outcomes))
	} else {
		logger.Info("Rotation finished: %d target(s) rotated", len(report.Outcomes))
	}
	return report
}

func (c *Coordinator) rotate(ctx context.Context, target config.Target) Outcome {
	logger := c.opts.Logger
	start := c.now()
	outcome := Outcome{Username: target.Username, SecretID: target.SecretID, State: Pending}

	if err := ctx.Err(); err != nil {
		outcome.State = Skipped
		outcome.Err = err
		logger.Warn("Skipping %s: %v", target.Username, err)
		return finish(&outcome, c.now, start)
	}

	logger.Debug("Rotating %s (secret %s, %s)", target.Username, target.SecretID, target.Encoding)

	// The password lives only in this scope.
	password, err := c.opts.Generator.Generate()
	if err != nil {
		outcome.State = GenerationFailed
		outcome.Err = err
		logger.Error("Could not generate a password for %s: %v", target.Username, err)
		return finish(&outcome, c.now, start)
	}
	outcome.State = PasswordGenerated

	result, err := c.opts.Roles.Rotate(ctx, target.Username, password, c.opts.Mode)
	if err != nil {
		outcome.State = RoleRotationFailed
		outcome.Err = err
		logger.Warn("Secret %s left unchanged because role %s was not rotated", target.SecretID, target.Username)
		return finish(&outcome, c.now, start)
	}
	outcome.State = RoleRotated
	outcome.Created = result.Created

	err = c.opts.Secrets.Update(ctx, secretrecord.Request{
		SecretID: target.SecretID,
		Encoding: target.Encoding,
		Fields:   target.Fields,
		Username: target.Username,
		Password: password,
	}, c.opts.Mode)
	if err != nil {
		outcome.State = SecretUpdateFailed
		outcome.Err = err
		if !c.opts.Mode.IsDryRun() {
			logger.Error("Role %s now has a password that is not stored in %s; rerun to rotate it again", target.Username, target.SecretID)
		}
		return finish(&outcome, c.now, start)
	}
	outcome.State = SecretUpdated

	return finish(&outcome, c.now, start)
}

func finish(o *Outcome, now func() time.Time, start time.Time) Outcome {
	o.Duration = now().Sub(start)
	return *o
}

func (c *Coordinator) saveHistory(report *Report) {
	if c.opts.History == nil {
		return
	}

	run := &storage.RunRecord{
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Mode:        report.Mode.String(),
		Host:        c.opts.Host,
		Database:    c.opts.Database,
		SecretStore: c.opts.SecretStore,
		User:        os.Getenv("USER"),
	}
	for _, o := range report.Outcomes {
		run.Targets = append(run.Targets, storage.TargetRecord{
			Username: o.Username,
			SecretID: o.SecretID,
			State:    string(o.State),
			Created:  o.Created,
			Duration: o.Duration,
			Error:    o.Error(),
		})
	}

	if err := c.opts.History.SaveRun(run); err != nil {
		c.opts.Logger.Warn("Could not record run history: %v", err)
	}
}
