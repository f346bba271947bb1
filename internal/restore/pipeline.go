// Package restore implements the end-to-end pipeline that rehomes a backed
// up instance under a brand-new database identity: extract, detect filestore
// layout, resolve the data directory, deploy the filestore, provision a
// clean role and database, preseed extensions, sanitize the dump, replay it
// as the new owner, and drop stale signaling sequences.
package restore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"rehome.io/rehome-cli/internal/archive"
	"rehome.io/rehome-cli/internal/dump"
	"rehome.io/rehome-cli/internal/filestore"
	"rehome.io/rehome-cli/internal/serverconf"
)

// Identity is the new database identity the instance is rehomed under. The
// identity the backup was produced with is never reused; it only occurs
// inside the dump text as values to be stripped.
type Identity struct {
	User     string
	Database string
	Password string
}

// Provisioner obtains a clean role+database pair, always delete-then-create.
type Provisioner interface {
	DeleteRoleAndDatabase(ctx context.Context, user, dbname string) error
	CreateRoleAndDatabase(ctx context.Context, user, dbname, password string) error
}

// StatementRunner executes SQL statements under a chosen role. Credentials
// are explicit per call and must not be retained by implementations.
type StatementRunner interface {
	RunStatementsAsElevatedRole(ctx context.Context, dbname string, statements []string) error
	RunStatementsAsRole(ctx context.Context, role, dbname, password string, statements []string) error
}

// ScriptRunner replays a full SQL script file as an unprivileged role.
type ScriptRunner interface {
	RestoreScriptAsRole(ctx context.Context, role, dbname, password, scriptPath string) error
}

// SequenceCleaner enumerates and drops stale coordination sequences.
type SequenceCleaner interface {
	ListSignalingSequences(ctx context.Context, role, dbname, password string) ([]string, error)
	DropSequencesCascade(ctx context.Context, role, dbname, password string, names []string) error
}

// Database bundles the collaborator interfaces a restore needs. *pg.Client
// satisfies all of them.
type Database interface {
	Provisioner
	StatementRunner
	ScriptRunner
	SequenceCleaner
}

// Stage names the states of the pipeline's state machine.
type Stage string

const (
	StageStart             Stage = "start"
	StageExtracted         Stage = "extracted"
	StageLayoutKnown       Stage = "layout-known"
	StageDataDirKnown      Stage = "data-dir-known"
	StageFilestoreDeployed Stage = "filestore-deployed"
	StageProvisioned       Stage = "provisioned"
	StageExtensionsSeeded  Stage = "extensions-seeded"
	StageSanitized         Stage = "sanitized"
	StageRestored          Stage = "restored"
	StageCleaned           Stage = "cleaned"
	StageDone              Stage = "done"
	StageFailed            Stage = "failed"
)

// Options tunes a single pipeline run.
type Options struct {
	// ArchivePath is a local path to the backup archive. Remote acquisition
	// happens before the pipeline starts.
	ArchivePath string
	// ConfigPath optionally points at the instance server config used to
	// resolve the data directory.
	ConfigPath string
	Verbose    bool
}

// StageTiming records how long a completed stage took.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result collects what a successful (or partially successful) run did.
type Result struct {
	FinalStage       Stage                 `json:"final_stage"`
	Layout           filestore.Layout      `json:"filestore_layout"`
	DataDir          string                `json:"data_dir"`
	FilestorePath    string                `json:"filestore_path"`
	FilestoreFiles   int                   `json:"filestore_files"`
	FilestoreBytes   int64                 `json:"filestore_bytes"`
	Extensions       []string              `json:"extensions"`
	LinesElided      map[dump.Category]int `json:"lines_elided"`
	Anomalies        []dump.Anomaly        `json:"anomalies,omitempty"`
	SequencesDropped []string              `json:"sequences_dropped"`
	Timings          []StageTiming         `json:"timings"`
}

// Pipeline runs the restore stages strictly in order, aborting on the first
// failure. It is not safe for concurrent use against the same target
// database name.
type Pipeline struct {
	db  Database
	out io.Writer
}

// New creates a pipeline over the given database collaborators. Progress
// lines are written to out.
func New(db Database, out io.Writer) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	return &Pipeline{db: db, out: out}
}

// Run executes the full pipeline. The scratch extraction is removed on every
// exit path; a cleanup failure is reported on the progress writer but never
// changes the outcome already determined by the stages.
func (p *Pipeline) Run(ctx context.Context, id Identity, opts Options) (*Result, error) {
	result := &Result{FinalStage: StageStart}
	start := time.Now()
	advance := func(stage Stage) {
		took := time.Since(start)
		result.Timings = append(result.Timings, StageTiming{Stage: stage, Duration: took})
		result.FinalStage = stage
		start = time.Now()
		if opts.Verbose {
			fmt.Fprintf(p.out, "  stage %s reached after %s\n", stage, took.Round(time.Millisecond))
		}
	}
	fail := func(stage Stage, sentinel, err error) (*Result, error) {
		result.FinalStage = StageFailed
		if sentinel != nil {
			return result, fmt.Errorf("stage %s: %w: %w", stage, sentinel, err)
		}
		return result, fmt.Errorf("stage %s: %w", stage, err)
	}

	// 1. Archive Extractor
	ex, err := archive.Extract(opts.ArchivePath)
	if err != nil {
		var missing *archive.MissingMemberError
		if errors.As(err, &missing) {
			return fail(StageExtracted, ErrMissingArchiveMember, err)
		}
		return fail(StageExtracted, nil, err)
	}
	defer func() {
		if err := ex.Cleanup(); err != nil {
			fmt.Fprintf(p.out, "warning: could not remove scratch directory %s: %v\n", ex.ScratchDir, err)
		}
	}()
	p.progress("Archive extracted to scratch area.")
	advance(StageExtracted)

	// 2. Layout Detector
	trueRoot, layout, err := filestore.Detect(ex.FilestoreDir)
	if err != nil {
		return fail(StageLayoutKnown, ErrAmbiguousFilestoreLayout, err)
	}
	result.Layout = layout
	p.progress(fmt.Sprintf("Filestore layout: %s.", layout))
	advance(StageLayoutKnown)

	// 3. Data Directory Resolver
	dataDir, err := serverconf.ResolveDataDir(opts.ConfigPath)
	if err != nil {
		return fail(StageDataDirKnown, ErrDataDirectoryUnresolvable, err)
	}
	result.DataDir = dataDir
	p.progress(fmt.Sprintf("Data directory: %s.", dataDir))
	advance(StageDataDirKnown)

	// 4. Filestore Relocator
	dep, err := filestore.Deploy(trueRoot, dataDir, id.Database)
	if err != nil {
		return fail(StageFilestoreDeployed, ErrFilestoreDeployFailure, err)
	}
	result.FilestorePath = dep.Dest
	result.FilestoreFiles = dep.FileCount
	result.FilestoreBytes = dep.TotalBytes
	p.progress(fmt.Sprintf("Filestore deployed: %d files, %d bytes.", dep.FileCount, dep.TotalBytes))
	advance(StageFilestoreDeployed)

	// 5. Role/Database Provisioner, always delete-then-create
	if err := p.db.DeleteRoleAndDatabase(ctx, id.User, id.Database); err != nil {
		return fail(StageProvisioned, ErrProvisioningFailure, err)
	}
	if err := p.db.CreateRoleAndDatabase(ctx, id.User, id.Database, id.Password); err != nil {
		return fail(StageProvisioned, ErrProvisioningFailure, err)
	}
	p.progress(fmt.Sprintf("Role %s and database %s provisioned.", id.User, id.Database))
	advance(StageProvisioned)

	// 6. Extension Preseeder. The restore role cannot create extensions
	// itself, so they are created under the elevated role before the bulk
	// restore runs.
	extensions, err := scanExtensions(ex.DumpPath)
	if err != nil {
		return fail(StageExtensionsSeeded, ErrExtensionCreationFailure, err)
	}
	if len(extensions) > 0 {
		statements := make([]string, 0, len(extensions))
		for _, name := range extensions {
			statements = append(statements, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q", name))
		}
		if err := p.db.RunStatementsAsElevatedRole(ctx, id.Database, statements); err != nil {
			return fail(StageExtensionsSeeded, ErrExtensionCreationFailure, err)
		}
	}
	result.Extensions = extensions
	p.progress(fmt.Sprintf("Preseeded %d extension(s).", len(extensions)))
	advance(StageExtensionsSeeded)

	// 7. Dump Sanitizer
	sanitizedPath := filepath.Join(ex.ScratchDir, "dump.sanitized.sql")
	stats, err := sanitizeDump(ex.DumpPath, sanitizedPath)
	if err != nil {
		return fail(StageSanitized, nil, err)
	}
	result.LinesElided = stats.LinesElided
	result.Anomalies = stats.Anomalies
	for _, a := range stats.Anomalies {
		fmt.Fprintf(p.out, "warning: line %d not classified (%s): %s\n", a.Line, a.Reason, a.Text)
	}
	p.progress(fmt.Sprintf("Dump sanitized: %d line(s) elided.", stats.Elided()))
	advance(StageSanitized)

	// 8. SQL Restorer, run as the new owning role
	if err := p.db.RestoreScriptAsRole(ctx, id.User, id.Database, id.Password, sanitizedPath); err != nil {
		return fail(StageRestored, ErrSqlRestoreFailure, err)
	}
	p.progress("SQL dump restored.")
	advance(StageRestored)

	// 9. Post-Restore Cleaner
	sequences, err := p.db.ListSignalingSequences(ctx, id.User, id.Database, id.Password)
	if err != nil {
		return fail(StageCleaned, ErrSequenceCleanupFailure, err)
	}
	if err := p.db.DropSequencesCascade(ctx, id.User, id.Database, id.Password, sequences); err != nil {
		return fail(StageCleaned, ErrSequenceCleanupFailure, err)
	}
	result.SequencesDropped = sequences
	p.progress(fmt.Sprintf("Dropped %d stale signaling sequence(s).", len(sequences)))
	advance(StageCleaned)

	advance(StageDone)
	return result, nil
}

func (p *Pipeline) progress(msg string) {
	fmt.Fprintf(p.out, "✓ %s\n", msg)
}

func scanExtensions(dumpPath string) ([]string, error) {
	file, err := os.Open(dumpPath)
	if err != nil {
		return nil, fmt.Errorf("could not open dump: %w", err)
	}
	defer file.Close()
	return dump.ScanExtensions(file)
}

func sanitizeDump(dumpPath, outPath string) (*dump.Stats, error) {
	in, err := os.Open(dumpPath)
	if err != nil {
		return nil, fmt.Errorf("could not open dump: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not create sanitized dump: %w", err)
	}

	stats, err := dump.Sanitize(in, out)
	if err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("could not finish sanitized dump: %w", err)
	}
	return stats, nil
}
