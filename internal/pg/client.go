// Package pg implements the PostgreSQL collaborators the restore pipeline
// delegates to: role/database provisioning under an elevated role, statement
// execution under either the elevated or the new owning role, bulk script
// restore via psql, and signaling-sequence cleanup.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ClientConfig describes how to reach the local PostgreSQL cluster.
type ClientConfig struct {
	// Host is used for all connections. The default unix socket directory
	// gives the elevated user peer authentication; role connections made
	// with a password work over it as well when md5/scram auth is set up.
	Host string
	Port int
	// AdminUser is the elevated (superuser-equivalent) role.
	AdminUser string
	// AdminPassword may be empty when peer or trust authentication applies.
	AdminPassword string
	// PsqlPath is the psql binary used for the bulk restore.
	PsqlPath string
}

// Client executes administrative and role-scoped operations against
// PostgreSQL.
type Client struct {
	cfg ClientConfig
}

// NewClient creates a client, filling in defaults for unset fields.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Host == "" {
		cfg.Host = "/var/run/postgresql"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.AdminUser == "" {
		cfg.AdminUser = "postgres"
	}
	if cfg.PsqlPath == "" {
		cfg.PsqlPath = "psql"
	}
	return &Client{cfg: cfg}
}

// dsn builds a lib/pq keyword/value connection string. The password is
// passed per connection and never stored in process-wide state.
func (c *Client) dsn(user, password, dbname string) string {
	parts := []string{
		fmt.Sprintf("host=%s", c.cfg.Host),
		fmt.Sprintf("port=%d", c.cfg.Port),
		fmt.Sprintf("user=%s", user),
		fmt.Sprintf("dbname=%s", dbname),
		"sslmode=disable",
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteConnValue(password)))
	}
	return strings.Join(parts, " ")
}

// quoteConnValue quotes a libpq connection string value that may contain
// spaces or quotes.
func quoteConnValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (c *Client) open(user, password, dbname string) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.dsn(user, password, dbname))
	if err != nil {
		return nil, fmt.Errorf("could not open connection to database %s as %s: %w", dbname, user, err)
	}
	return db, nil
}

// DeleteRoleAndDatabase drops the role and database pair if present.
// Idempotent on absence.
func (c *Client) DeleteRoleAndDatabase(ctx context.Context, user, dbname string) error {
	db, err := c.open(c.cfg.AdminUser, c.cfg.AdminPassword, "postgres")
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(dbname))); err != nil {
		return fmt.Errorf("could not drop database %s: %w", dbname, err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", pq.QuoteIdentifier(user))); err != nil {
		return fmt.Errorf("could not drop role %s: %w", user, err)
	}
	return nil
}

// CreateRoleAndDatabase creates a fresh login role with the supplied
// password and a database owned by it.
func (c *Client) CreateRoleAndDatabase(ctx context.Context, user, dbname, password string) error {
	db, err := c.open(c.cfg.AdminUser, c.cfg.AdminPassword, "postgres")
	if err != nil {
		return err
	}
	defer db.Close()

	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s",
		pq.QuoteIdentifier(user), pq.QuoteLiteral(password))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("could not create role %s: %w", user, err)
	}

	stmt = fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(dbname), pq.QuoteIdentifier(user))
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("could not create database %s: %w", dbname, err)
	}
	return nil
}

// RunStatementsAsElevatedRole executes statements in dbname under the
// elevated role, aborting on the first failure.
func (c *Client) RunStatementsAsElevatedRole(ctx context.Context, dbname string, statements []string) error {
	db, err := c.open(c.cfg.AdminUser, c.cfg.AdminPassword, dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	return runStatements(ctx, db, statements)
}

// RunStatementsAsRole executes statements in dbname as role, authenticated
// with password. The password lives only for the duration of this call.
func (c *Client) RunStatementsAsRole(ctx context.Context, role, dbname, password string, statements []string) error {
	db, err := c.open(role, password, dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	return runStatements(ctx, db, statements)
}

func runStatements(ctx context.Context, db *sql.DB, statements []string) error {
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %q failed: %w", truncateStatement(stmt), err)
		}
	}
	return nil
}

func truncateStatement(stmt string) string {
	const max = 80
	stmt = strings.TrimSpace(stmt)
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}
