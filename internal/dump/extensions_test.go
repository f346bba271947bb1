package dump

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanExtensions(t *testing.T) {
	in := strings.Join([]string{
		"SET statement_timeout = 0;",
		"CREATE EXTENSION IF NOT EXISTS unaccent WITH SCHEMA public;",
		"COMMENT ON EXTENSION unaccent IS 'text search dictionary';",
		`CREATE EXTENSION IF NOT EXISTS "pg_trgm" WITH SCHEMA public;`,
		"create extension pgcrypto;",
		"CREATE EXTENSION IF NOT EXISTS unaccent;",
		"CREATE TABLE t (id int);",
	}, "\n")

	names, err := ScanExtensions(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"unaccent", "pg_trgm", "pgcrypto"}, names)
}

func TestScanExtensionsNone(t *testing.T) {
	names, err := ScanExtensions(strings.NewReader("CREATE TABLE t (id int);\n"))
	require.NoError(t, err)
	assert.Empty(t, names)
}
