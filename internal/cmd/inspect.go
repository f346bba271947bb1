package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"rehome.io/rehome-cli/internal/archive"
	"rehome.io/rehome-cli/internal/dump"
	"rehome.io/rehome-cli/internal/filestore"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <backup_archive>",
	Short: "Inspect a backup archive without restoring it",
	Long: `Extracts the archive into a scratch area, validates the required members,
classifies the filestore layout and lists the extensions the dump declares.
Nothing on the host is modified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex, err := archive.Extract(args[0])
		if err != nil {
			return fmt.Errorf("archive is not restorable: %w", err)
		}
		defer func() {
			if err := ex.Cleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not remove scratch directory: %v\n", err)
			}
		}()

		trueRoot, layout, err := filestore.Detect(ex.FilestoreDir)
		if err != nil {
			return fmt.Errorf("could not classify filestore layout: %w", err)
		}

		count, bytes, err := filestore.Measure(trueRoot)
		if err != nil {
			return fmt.Errorf("could not measure filestore: %w", err)
		}

		file, err := os.Open(ex.DumpPath)
		if err != nil {
			return fmt.Errorf("could not open dump: %w", err)
		}
		extensions, err := dump.ScanExtensions(file)
		file.Close()
		if err != nil {
			return err
		}

		file, err = os.Open(ex.DumpPath)
		if err != nil {
			return fmt.Errorf("could not open dump: %w", err)
		}
		stats, err := dump.Sanitize(file, io.Discard)
		file.Close()
		if err != nil {
			return err
		}

		fmt.Printf("Archive: %s\n", args[0])
		fmt.Printf("Filestore layout: %s\n", layout)
		fmt.Printf("Filestore contents: %d files, %d bytes\n", count, bytes)
		if len(extensions) > 0 {
			fmt.Printf("Extensions declared: %s\n", strings.Join(extensions, ", "))
		} else {
			fmt.Println("Extensions declared: none")
		}
		fmt.Printf("Dump: %d lines, %d would be elided on restore\n", stats.LinesRead, stats.Elided())
		for _, a := range stats.Anomalies {
			fmt.Printf("  anomaly at line %d (%s): %s\n", a.Line, a.Reason, a.Text)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
