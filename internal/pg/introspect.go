package pg

import (
	"context"
	"fmt"
)

// PingAsRole verifies that dbname accepts connections from role with the
// supplied password.
func (c *Client) PingAsRole(ctx context.Context, role, dbname, password string) error {
	db, err := c.open(role, password, dbname)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("could not connect to %s as %s: %w", dbname, role, err)
	}
	return nil
}

// CountUserTables returns the number of ordinary tables in the public schema
// of dbname, connected as role.
func (c *Client) CountUserTables(ctx context.Context, role, dbname, password string) (int, error) {
	db, err := c.open(role, password, dbname)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx,
		`SELECT count(*) FROM pg_tables WHERE schemaname = 'public'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("could not count tables in %s: %w", dbname, err)
	}
	return count, nil
}
