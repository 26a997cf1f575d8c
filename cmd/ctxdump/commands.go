package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ctxdump/internal/config"
	"ctxdump/internal/hint"
	"ctxdump/internal/render"
	"ctxdump/internal/reportfile"
)

// reportFile picks the file a command reads: the argument when given,
// otherwise the configured output path, otherwise the newest file in the
// output directory, otherwise the default location.
func reportFile(cfg config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.OutputPath != "" {
		return cfg.OutputPath, nil
	}
	if cfg.OutputDir != "" {
		summaries, err := reportfile.NewStore(cfg.OutputDir).List()
		if err != nil {
			return "", err
		}
		if len(summaries) == 0 {
			return "", fmt.Errorf("%w: no reports in %s", reportfile.ErrNotFound, cfg.OutputDir)
		}
		return summaries[len(summaries)-1].Path, nil
	}
	return cfg.ReportPath(0, ""), nil
}

func readRecords(cfg config.Config, args []string) (string, []reportfile.Record, error) {
	path, err := reportFile(cfg, args)
	if err != nil {
		return "", nil, err
	}
	records, err := reportfile.ReadFile(path)
	if err != nil {
		if errors.Is(err, reportfile.ErrNotFound) {
			return path, nil, fmt.Errorf("%w: %s", err, path)
		}
		return path, nil, err
	}
	return path, records, nil
}

type recordSummary struct {
	Date    string `json:"date"`
	Status  string `json:"status"`
	Suite   string `json:"suite"`
	Name    string `json:"name"`
	DataSet string `json:"data_set,omitempty"`
}

func newListCmd(cfg config.Config) *cobra.Command {
	var jsonOutput, failedOnly bool
	cmd := &cobra.Command{
		Use:   "list [file]",
		Short: "List the tests recorded in a report file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, records, err := readRecords(cfg, args)
			if err != nil {
				return err
			}
			if failedOnly {
				records = reportfile.Filter(records, reportfile.Record.Failed)
			}
			out := cmd.OutOrStdout()

			if jsonOutput {
				summaries := make([]recordSummary, 0, len(records))
				for _, r := range records {
					summaries = append(summaries, recordSummary{
						Date: formatDate(r.Date), Status: r.Status, Suite: r.Suite, Name: r.Name, DataSet: r.DataSet,
					})
				}
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return fmt.Errorf("cannot serialize records: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(records) == 0 {
				fmt.Fprintln(out, "No records found")
				return nil
			}
			status := statusStyler(out)
			for _, r := range records {
				fmt.Fprintf(out, "%s  %s  %s\n", formatDate(r.Date), status(r.Status), r.ID())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed tests")
	return cmd
}

func newShowCmd(cfg config.Config) *cobra.Command {
	var testName string
	var failedOnly bool
	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Print the full records of matching tests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, records, err := readRecords(cfg, args)
			if err != nil {
				return err
			}
			matches := reportfile.Filter(records, func(r reportfile.Record) bool {
				if failedOnly && !r.Failed() {
					return false
				}
				return testName == "" || r.Name == testName || r.TestName() == testName
			})
			if len(matches) == 0 {
				return fmt.Errorf("%w: no record matches", reportfile.ErrNotFound)
			}
			for _, r := range matches {
				writeRecord(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&testName, "test", "", "test name, with or without subtest path")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed tests")
	return cmd
}

func newRerunCmd(cfg config.Config) *cobra.Command {
	var pkgs []string
	cmd := &cobra.Command{
		Use:   "rerun [file]",
		Short: "Print a go test command re-running the failed tests with dumps enabled",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, records, err := readRecords(cfg, args)
			if err != nil {
				return err
			}
			var names []string
			for _, r := range reportfile.Filter(records, reportfile.Record.Failed) {
				names = append(names, r.TestName())
			}
			command := hint.Command(hint.Filter(names), pkgs...)
			if command == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed tests found")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), command)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&pkgs, "pkg", nil, "package patterns to test (default ./...)")
	return cmd
}

func newTailCmd(cfg config.Config) *cobra.Command {
	var count int
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail [file]",
		Short: "Print the last records and optionally follow new ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := reportFile(cfg, args)
			if err != nil {
				return err
			}
			records, err := reportfile.ReadFile(path)
			if err != nil && !(follow && errors.Is(err, reportfile.ErrNotFound)) {
				return fmt.Errorf("%w: %s", err, path)
			}
			if count >= 0 && len(records) > count {
				records = records[len(records)-count:]
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				writeRecord(out, r)
			}
			if !follow {
				return nil
			}
			return reportfile.NewFollower(path).Run(cmd.Context(), func(r reportfile.Record) {
				writeRecord(out, r)
			})
		},
	}
	cmd.Flags().IntVarP(&count, "lines", "n", 1, "number of records to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "wait for new records")
	return cmd
}

func newPruneCmd(cfg config.Config) *cobra.Command {
	var dir, olderThan string
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete report files older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(olderThan)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.OutputDir
			}
			if dir == "" {
				dir = config.DefaultDir
			}
			deleted, err := reportfile.NewStore(dir).Prune(age)
			if err != nil {
				return fmt.Errorf("cannot prune reports: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d report file(s) older than %s from %s\n", deleted, olderThan, filepath.Clean(dir))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "report directory (default: configured output dir)")
	cmd.Flags().StringVar(&olderThan, "older-than", "7d", "minimum age, e.g. 36h or 7d")
	return cmd
}

// parseAge accepts time.ParseDuration syntax plus a whole-day "Nd" form.
func parseAge(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(render.DateLayout)
}

func writeRecord(w io.Writer, r reportfile.Record) {
	fmt.Fprintf(w, "%s\n%s\n\n", render.Separator, r.Body)
}

// statusStyler colours statuses when w is a terminal.
func statusStyler(w io.Writer) func(string) string {
	re := lipgloss.NewRenderer(w)
	failed := re.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	passed := re.NewStyle().Foreground(lipgloss.Color("2"))
	return func(status string) string {
		if status == render.StatusFailed {
			return failed.Render(status)
		}
		return passed.Render(status)
	}
}
