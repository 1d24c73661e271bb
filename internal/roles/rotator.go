// Package roles creates or resets PostgreSQL login roles and grants them access to the
// application database.
package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/systmms/dbrotate/internal/database"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/mode"
)

const checkRoleSQL = "SELECT 1 FROM pg_roles WHERE rolname = $1"

// Plan is the full statement set for one role. Identifiers are quoted to survive mixed
// case and punctuation; usernames come from operator configuration, not from users.
type Plan struct {
	Username string
	Check    string
	Create   string
	Alter    string
	Grants   []string
}

// NewPlan renders the statements that give username the password and grants it access to dbName.
func NewPlan(dbName, username, password string) Plan {
	role := pq.QuoteIdentifier(username)
	secret := pq.QuoteLiteral(password)

	return Plan{
		Username: username,
		Check:    checkRoleSQL,
		Create:   fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", role, secret),
		Alter:    fmt.Sprintf("ALTER USER %s WITH PASSWORD %s", role, secret),
		Grants: []string{
			fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", pq.QuoteIdentifier(dbName), role),
			fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", role),
			fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO %s", role),
		},
	}
}

// All returns every statement the plan may run, in execution order with both branches.
func (p Plan) All() []string {
	out := []string{p.Check, p.Create, p.Alter}
	return append(out, p.Grants...)
}

// Result reports what happened to one role
type Result struct {
	Username string
	// Created is true when the role did not exist and was created
	Created bool
	// DryRun is true when nothing was executed
	DryRun bool
	// Statements lists what ran (or would run), passwords redacted
	Statements []string
}

// Rotator applies plans against the shared database session
type Rotator struct {
	db       database.Beginner
	database string
	logger   *logging.Logger
}

// NewRotator creates a rotator for roles in dbName. db may be nil for dry runs.
func NewRotator(db database.Beginner, dbName string, logger *logging.Logger) *Rotator {
	return &Rotator{
		db:       db,
		database: dbName,
		logger:   logger,
	}
}

// Rotate sets username's password to newPassword, creating the role if needed, and grants
// it access, all in one transaction. Any failure rolls the whole unit back. In dry-run no
// transaction is opened and the statements are only reported.
func (r *Rotator) Rotate(ctx context.Context, username, newPassword string, m mode.Mode) (*Result, error) {
	plan := NewPlan(r.database, username, newPassword)
	redact := func(stmts []string) []string {
		out := make([]string, len(stmts))
		for i, s := range stmts {
			out[i] = logging.Redact(s, []string{newPassword})
		}
		return out
	}

	if m.IsDryRun() {
		statements := redact(plan.All())
		r.logger.DryRun("Would execute SQL for user %s:", username)
		for _, stmt := range statements {
			r.logger.DryRun("  %s", stmt)
		}
		return &Result{Username: username, DryRun: true, Statements: statements}, nil
	}

	if r.db == nil {
		return nil, dserrors.RoleRotationError(username, errors.New("no database session"))
	}

	result := &Result{Username: username}
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		var executed []string

		var one int
		err := tx.QueryRowContext(ctx, plan.Check, username).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result.Created = true
		case err != nil:
			return fmt.Errorf("checking role: %w", err)
		}
		executed = append(executed, plan.Check)

		stmts := []string{plan.Alter}
		if result.Created {
			stmts = []string{plan.Create}
		}
		stmts = append(stmts, plan.Grants...)

		for _, stmt := range stmts {
			r.logger.Debug("Executing %s", logging.Redact(stmt, []string{newPassword}))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing %q: %w", logging.Redact(stmt, []string{newPassword}), err)
			}
			executed = append(executed, stmt)
		}

		result.Statements = redact(executed)
		return nil
	})
	if err != nil {
		err = dserrors.RoleRotationError(username, err)
		r.logger.Error("Error updating user %s: %v", username, err)
		return nil, err
	}

	action := "updated"
	if result.Created {
		action = "created"
	}
	r.logger.Info("Postgres user %s %s successfully", username, action)
	return result, nil
}
