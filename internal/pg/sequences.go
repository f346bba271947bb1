package pg

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// signalingSequencesQuery finds the multi-worker coordination sequences the
// application server creates at runtime (base_registry_signaling,
// base_cache_signaling and friends). Their values are meaningful only to the
// instance that produced the backup.
const signalingSequencesQuery = `
SELECT c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'S'
  AND n.nspname = 'public'
  AND c.relname LIKE 'base\_%'
  AND c.relname LIKE '%signaling%'
ORDER BY c.relname`

// ListSignalingSequences enumerates signaling sequences in dbname, connected
// as the owning role.
func (c *Client) ListSignalingSequences(ctx context.Context, role, dbname, password string) ([]string, error) {
	db, err := c.open(role, password, dbname)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, signalingSequencesQuery)
	if err != nil {
		return nil, fmt.Errorf("could not enumerate signaling sequences in %s: %w", dbname, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("could not read sequence name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not enumerate signaling sequences in %s: %w", dbname, err)
	}
	return names, nil
}

// DropSequencesCascade drops the named sequences in dbname as the owning
// role, cascading to dependents.
func (c *Client) DropSequencesCascade(ctx context.Context, role, dbname, password string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	statements := make([]string, 0, len(names))
	for _, name := range names {
		statements = append(statements,
			fmt.Sprintf("DROP SEQUENCE IF EXISTS public.%s CASCADE", pq.QuoteIdentifier(name)))
	}
	return c.RunStatementsAsRole(ctx, role, dbname, password, statements)
}
