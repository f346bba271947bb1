package verify

import (
	"context"
	"fmt"
	"strings"

	"rehome.io/rehome-cli/internal/filestore"
)

// DatabaseInspector is the slice of database access the checkers need.
// *pg.Client satisfies it.
type DatabaseInspector interface {
	PingAsRole(ctx context.Context, role, dbname, password string) error
	CountUserTables(ctx context.Context, role, dbname, password string) (int, error)
	ListSignalingSequences(ctx context.Context, role, dbname, password string) ([]string, error)
}

// ConnectivityChecker verifies the restored database accepts connections
// from the new role with the new password.
type ConnectivityChecker struct {
	DB       DatabaseInspector
	Role     string
	Database string
	Password string
}

func (c *ConnectivityChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:  "connectivity",
		Level: LevelCritical,
	}

	if err := c.DB.PingAsRole(ctx, c.Role, c.Database, c.Password); err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Cannot connect as %s: %v", c.Role, err)
		return result
	}

	result.Passed = true
	result.Message = fmt.Sprintf("Database %s accepts connections as %s", c.Database, c.Role)
	return result
}

// TablesPresentChecker verifies the restored database contains at least one
// user table. An empty public schema means the dump replay did nothing.
type TablesPresentChecker struct {
	DB       DatabaseInspector
	Role     string
	Database string
	Password string
}

func (c *TablesPresentChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:  "tables_present",
		Level: LevelCritical,
	}

	count, err := c.DB.CountUserTables(ctx, c.Role, c.Database, c.Password)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Could not count tables: %v", err)
		return result
	}

	if count == 0 {
		result.Passed = false
		result.Message = "No user tables found in public schema"
	} else {
		result.Passed = true
		result.Message = fmt.Sprintf("%d user tables present", count)
	}
	return result
}

// SequencesGoneChecker verifies no stale signaling sequences survived the
// post-restore cleaner.
type SequencesGoneChecker struct {
	DB       DatabaseInspector
	Role     string
	Database string
	Password string
}

func (c *SequencesGoneChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:  "signaling_sequences_gone",
		Level: LevelCritical,
	}

	remaining, err := c.DB.ListSignalingSequences(ctx, c.Role, c.Database, c.Password)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Could not enumerate sequences: %v", err)
		return result
	}

	if len(remaining) > 0 {
		result.Passed = false
		result.Message = fmt.Sprintf("Signaling sequences still present: %s", strings.Join(remaining, ", "))
	} else {
		result.Passed = true
		result.Message = "No signaling sequences remain"
	}
	return result
}

// FilestoreIntactChecker verifies the deployed filestore still matches the
// file count and byte size recorded at deployment time.
type FilestoreIntactChecker struct {
	Path          string
	ExpectedFiles int
	ExpectedBytes int64
}

func (c *FilestoreIntactChecker) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:  "filestore_intact",
		Level: LevelCritical,
	}

	count, bytes, err := filestore.Measure(c.Path)
	if err != nil {
		result.Passed = false
		result.Message = fmt.Sprintf("Could not measure filestore at %s: %v", c.Path, err)
		return result
	}

	if count != c.ExpectedFiles || bytes != c.ExpectedBytes {
		result.Passed = false
		result.Message = fmt.Sprintf("Filestore drifted: expected %d files (%d bytes), found %d files (%d bytes)",
			c.ExpectedFiles, c.ExpectedBytes, count, bytes)
	} else {
		result.Passed = true
		result.Message = fmt.Sprintf("Filestore intact: %d files, %d bytes", count, bytes)
	}
	return result
}
