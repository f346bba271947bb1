package pg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// RestoreScriptAsRole replays a SQL script file into dbname via psql,
// authenticated as role. Running as the unprivileged role means every object
// the script creates ends up owned by it. psql is used instead of a driver
// connection because plain-format dumps carry COPY ... FROM stdin blocks.
//
// The password is injected only into this command's environment, not into
// the process-wide environment, and is gone when the subprocess exits.
func (c *Client) RestoreScriptAsRole(ctx context.Context, role, dbname, password, scriptPath string) error {
	cmd := exec.CommandContext(ctx, c.cfg.PsqlPath,
		"--host", c.cfg.Host,
		"--port", strconv.Itoa(c.cfg.Port),
		"--username", role,
		"--dbname", dbname,
		"--no-psqlrc",
		"--quiet",
		"--set", "ON_ERROR_STOP=1",
		"--file", scriptPath,
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+password)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := stderr.String()
		if diag == "" {
			return fmt.Errorf("psql restore into %s failed: %w", dbname, err)
		}
		return fmt.Errorf("psql restore into %s failed: %w\n%s", dbname, err, diag)
	}
	return nil
}
