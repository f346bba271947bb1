package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"rehome.io/rehome-cli/internal/backup"
	"rehome.io/rehome-cli/internal/config"
	"rehome.io/rehome-cli/internal/crypto"
	"rehome.io/rehome-cli/internal/pg"
	"rehome.io/rehome-cli/internal/report"
	"rehome.io/rehome-cli/internal/restore"
	"rehome.io/rehome-cli/internal/verify"
)

var (
	restoreVerbose    bool
	restoreSkipVerify bool
	restoreReport     bool
	restoreAgeKey     string
)

var restoreCmd = &cobra.Command{
	Use:   "restore <db_user> <db_name> <db_password> <backup_archive> [<config_path>]",
	Short: "Restore a backup archive under a new database identity",
	Long: `Runs the full restore pipeline against this host:

1. Extracts the backup archive into a private scratch area.
2. Classifies the filestore directory convention.
3. Resolves the host's data directory from the server config.
4. Replaces the per-database filestore subtree.
5. Provisions a clean role and database (delete-then-create).
6. Preseeds extensions under the elevated role.
7. Sanitizes the dump, stripping environment-bound statements.
8. Replays the sanitized dump as the new owning role.
9. Drops stale multi-worker signaling sequences.

The backup archive may be a local path, an s3:// URI, or command:<shell>
producing the archive on stdout. The scratch area is removed on every exit
path.`,
	Args: cobra.RangeArgs(4, 5),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		started := time.Now()

		identity := restore.Identity{
			User:     args[0],
			Database: args[1],
			Password: args[2],
		}
		archiveArg := args[3]
		configPath := ""
		if len(args) == 5 {
			configPath = args[4]
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		source, err := backup.Resolve(archiveArg, cfg.S3)
		if err != nil {
			return fmt.Errorf("failed to resolve backup source: %w", err)
		}

		archivePath, cleanupSpool, err := materializeArchive(ctx, source)
		if err != nil {
			return err
		}
		defer cleanupSpool()
		fmt.Printf("✓ Backup archive acquired from %s.\n", source.Identifier())

		client := pg.NewClient(pg.ClientConfig{
			Host:          cfg.Postgres.Host,
			Port:          cfg.Postgres.Port,
			AdminUser:     cfg.Postgres.AdminUser,
			AdminPassword: cfg.AdminPassword(),
			PsqlPath:      cfg.Postgres.PsqlPath,
		})

		pipeline := restore.New(client, os.Stdout)
		result, err := pipeline.Run(ctx, identity, restore.Options{
			ArchivePath: archivePath,
			ConfigPath:  configPath,
			Verbose:     restoreVerbose,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		var checks []verify.CheckResult
		if !restoreSkipVerify {
			fmt.Println("Running post-restore checks...")
			checks = verify.RunChecks(ctx, buildCheckers(client, identity, result))
			for _, r := range checks {
				status := "✓"
				if !r.Passed {
					status = "✗"
				}
				fmt.Printf("  %s [%s] %s: %s\n", status, r.Level, r.Name, r.Message)
			}
		}

		if restoreReport {
			if err := writeRestoreReport(cfg, source.Identifier(), identity, result, checks, time.Since(started)); err != nil {
				// The restore itself already succeeded or failed on its own
				// terms; reporting problems are surfaced but not fatal.
				fmt.Fprintf(os.Stderr, "warning: could not write restore report: %v\n", err)
			}
		}

		if verify.HasCriticalFailure(checks) {
			return fmt.Errorf("post-restore checks failed")
		}

		fmt.Printf("\n✓ Instance restored as database %s owned by %s.\n", identity.Database, identity.User)
		return nil
	},
}

// materializeArchive turns a backup source into a local file path the
// extractor can work on. Local unencrypted archives are used in place;
// everything else is spooled to a temporary file.
func materializeArchive(ctx context.Context, source backup.Source) (string, func(), error) {
	local, isLocal := source.(*backup.LocalSource)
	if isLocal && restoreAgeKey == "" {
		return local.Path, func() {}, nil
	}

	stream, err := source.Acquire(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to acquire backup archive: %w", err)
	}
	defer stream.Close()

	var data io.Reader = stream
	if restoreAgeKey != "" {
		decryptor, err := crypto.NewAgeDecryptor(restoreAgeKey)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create decryptor: %w", err)
		}
		data, err = decryptor.Decrypt(stream)
		if err != nil {
			return "", nil, fmt.Errorf("decryption failed: %w", err)
		}
		fmt.Println("✓ Backup archive decrypted.")
	}

	spool, err := os.CreateTemp("", "rehome-archive-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := io.Copy(spool, data); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return "", nil, fmt.Errorf("failed to spool backup archive: %w", err)
	}
	if err := spool.Close(); err != nil {
		os.Remove(spool.Name())
		return "", nil, fmt.Errorf("failed to finish spooling backup archive: %w", err)
	}

	return spool.Name(), func() { os.Remove(spool.Name()) }, nil
}

func buildCheckers(client *pg.Client, id restore.Identity, result *restore.Result) []verify.Checker {
	return []verify.Checker{
		&verify.ConnectivityChecker{DB: client, Role: id.User, Database: id.Database, Password: id.Password},
		&verify.TablesPresentChecker{DB: client, Role: id.User, Database: id.Database, Password: id.Password},
		&verify.SequencesGoneChecker{DB: client, Role: id.User, Database: id.Database, Password: id.Password},
		&verify.FilestoreIntactChecker{
			Path:          result.FilestorePath,
			ExpectedFiles: result.FilestoreFiles,
			ExpectedBytes: result.FilestoreBytes,
		},
	}
}

func writeRestoreReport(cfg *config.Config, source string, id restore.Identity, result *restore.Result, checks []verify.CheckResult, elapsed time.Duration) error {
	rpt := report.NewReportBuilder().
		WithID(uuid.New().String()).
		WithArchiveSource(source).
		WithDatabase(id.Database, id.User).
		WithPipeline(result).
		WithChecks(checks).
		WithDuration(elapsed).
		Build()

	if privateKey, err := report.LoadPrivateKey(cfg.Signing.PrivateKeyPath); err == nil {
		if err := report.Sign(rpt, privateKey); err != nil {
			return fmt.Errorf("failed to sign report: %w", err)
		}
	}

	path, err := report.WriteJSON(rpt, cfg.CLI.ReportDir)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Report saved to %s\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVarP(&restoreVerbose, "verbose", "v", false, "Enable verbose output")
	restoreCmd.Flags().BoolVar(&restoreSkipVerify, "skip-verify", false, "Skip post-restore checks")
	restoreCmd.Flags().BoolVar(&restoreReport, "report", false, "Write a signed JSON restore report")
	restoreCmd.Flags().StringVar(&restoreAgeKey, "age-key", "", "Path to an age private key for encrypted archives")
}
