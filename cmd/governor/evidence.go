package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/config"
	"nanogov/governor/pkg/evidence"
	"nanogov/governor/pkg/evidence/export"
	"nanogov/governor/pkg/evidence/query"
	"nanogov/governor/pkg/evidence/retention"
)

var evidenceFlags struct {
	backend    string
	since      string
	until      string
	node       string
	checkpoint string
	verdict    string
	policy     string
	rule       string
	faults     bool
	limit      int
	offset     int
	sort       string
	order      string
	format     string
	output     string
	days       int
	maxRecords int64
}

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Query the evidence archive",
	Long: `Query, export and prune the durable archive of enforcement decisions.

The decision log keeps only the most recent entries; the archive keeps one
record per decision for audit and forensics.

Subcommands:
  query  - List records matching filters
  export - Stream matching records as JSON or CSV
  prune  - Apply the retention policy now

Examples:
  # Denials since the start of the month
  governor evidence query --verdict deny --since 2026-10-01T00:00:00Z

  # Export a policy's decisions to CSV
  governor evidence export --policy GOV-SEC-AA11BB22 --format csv -o decisions.csv

  # Keep only the last 30 days
  governor evidence prune --days 30`,
}

var evidenceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query evidence records",
	Long: `Query evidence records with filters. Times are RFC 3339.

Examples:
  # Faults on one node
  governor evidence query --node edge-7 --faults

  # Oldest first, second page
  governor evidence query --order asc --limit 50 --offset 50`,
	RunE: queryEvidence,
}

var evidenceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export evidence records",
	Long: `Stream evidence records matching the filters as JSON or CSV without
loading the result set into memory.

Examples:
  # Everything from yesterday as JSON
  governor evidence export --since 2026-10-17T00:00:00Z --until 2026-10-18T00:00:00Z -o day.json`,
	RunE: exportEvidence,
}

var evidencePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune evidence records",
	Long: `Delete records older than the retention period and beyond the record
cap, archiving them first when configured.

Examples:
  # Use the configured retention
  governor evidence prune

  # Override for this run
  governor evidence prune --days 7 --max-records 100000`,
	RunE: pruneEvidence,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceQueryCmd, evidenceExportCmd, evidencePruneCmd)

	evidenceCmd.PersistentFlags().StringVar(&evidenceFlags.backend, "backend", "", "backend: sqlite, postgres, memory (uses config if not specified)")

	for _, c := range []*cobra.Command{evidenceQueryCmd, evidenceExportCmd} {
		c.Flags().StringVar(&evidenceFlags.since, "since", "", "earliest decision time (RFC 3339)")
		c.Flags().StringVar(&evidenceFlags.until, "until", "", "latest decision time (RFC 3339)")
		c.Flags().StringVar(&evidenceFlags.node, "node", "", "filter by node ID")
		c.Flags().StringVar(&evidenceFlags.checkpoint, "checkpoint", "", "filter by checkpoint")
		c.Flags().StringVar(&evidenceFlags.verdict, "verdict", "", "filter by verdict (allow, deny, quarantine, erase)")
		c.Flags().StringVar(&evidenceFlags.policy, "policy", "", "filter by deciding policy ID")
		c.Flags().StringVar(&evidenceFlags.rule, "rule", "", "filter by deciding rule ID")
		c.Flags().BoolVar(&evidenceFlags.faults, "faults", false, "only decisions that hit an engine fault")
		c.Flags().IntVar(&evidenceFlags.limit, "limit", 0, "max results (default from evidence.query)")
		c.Flags().IntVar(&evidenceFlags.offset, "offset", 0, "pagination offset")
		c.Flags().StringVar(&evidenceFlags.sort, "sort", "", "sort by: timestamp, duration, verdict")
		c.Flags().StringVar(&evidenceFlags.order, "order", "", "sort order: asc, desc")
		c.Flags().StringVarP(&evidenceFlags.output, "output", "o", "", "output file (default: stdout)")
	}
	evidenceQueryCmd.Flags().StringVar(&evidenceFlags.format, "format", "text", "output format: text, json, csv")
	evidenceExportCmd.Flags().StringVar(&evidenceFlags.format, "format", "json", "output format: json, jsonl, csv")

	evidencePruneCmd.Flags().IntVar(&evidenceFlags.days, "days", -1, "retention in days (0 keeps forever; default from config)")
	evidencePruneCmd.Flags().Int64Var(&evidenceFlags.maxRecords, "max-records", -1, "record cap (0 is unlimited; default from config)")
}

// evidenceQuery builds the query from the filter flags.
func evidenceQuery(defaultLimit int) (*evidence.Query, error) {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("since", evidenceFlags.since)
	set("until", evidenceFlags.until)
	set("node", evidenceFlags.node)
	set("checkpoint", evidenceFlags.checkpoint)
	set("verdict", evidenceFlags.verdict)
	set("policy", evidenceFlags.policy)
	set("rule", evidenceFlags.rule)
	set("sort", evidenceFlags.sort)
	set("order", evidenceFlags.order)
	if evidenceFlags.faults {
		v.Set("faults", "true")
	}
	limit := evidenceFlags.limit
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if evidenceFlags.offset > 0 {
		v.Set("offset", strconv.Itoa(evidenceFlags.offset))
	}

	q, err := query.FromValues(v)
	if err != nil {
		return nil, cli.NewConfigError("filter", err.Error())
	}
	return q, nil
}

// openArchive loads the configuration and opens the evidence backend,
// honoring --backend.
func openArchive(ctx context.Context) (evidence.Storage, *evidenceSettings, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ec := cfg.Evidence
	if evidenceFlags.backend != "" {
		ec.Backend = evidenceFlags.backend
	}
	store, err := openEvidence(ctx, &ec)
	if err != nil {
		return nil, nil, err
	}
	return store, &evidenceSettings{
		defaultLimit: ec.Query.DefaultLimit,
		maxLimit:     ec.Query.MaxLimit,
		timeout:      ec.Query.Timeout,
		pretty:       ec.Export.JSONPretty,
		retention:    ec.Retention,
	}, nil
}

type evidenceSettings struct {
	defaultLimit int
	maxLimit     int
	timeout      time.Duration
	pretty       bool
	retention    config.RetentionConfig
}

// output opens --output, or returns stdout.
func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if evidenceFlags.output == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	// #nosec G304 - The output path is supplied by the operator.
	f, err := os.Create(evidenceFlags.output)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", evidenceFlags.output, err)
	}
	return f, f.Close, nil
}

// recordTable renders records for text and CSV output.
type recordTable []*evidence.Record

func (t recordTable) Table() cli.Table {
	table := cli.Table{Headers: []string{"TIME", "NODE", "CHECKPOINT", "VERDICT", "POLICY", "RULE", "MESSAGE"}}
	for _, r := range t {
		message := r.Message
		if r.Fault != "" {
			message = "fault: " + r.Fault
		}
		table.Rows = append(table.Rows, []string{
			r.DecisionTime.UTC().Format(time.RFC3339),
			r.NodeID,
			r.Checkpoint,
			r.Verdict,
			r.PolicyID,
			r.RuleID,
			message,
		})
	}
	return table
}

func queryEvidence(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(evidenceFlags.format)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, settings, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := evidenceQuery(settings.defaultLimit)
	if err != nil {
		return err
	}
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("evidence query", err)
	}

	w, closeOut, err := output(cmd)
	if err != nil {
		return cli.NewCommandError("evidence query", err)
	}
	if format == cli.FormatJSON {
		err = cli.NewFormatter(format).FormatTo(w, records)
	} else {
		err = cli.NewFormatter(format).FormatTo(w, recordTable(records))
	}
	if err != nil {
		closeOut()
		return err
	}
	if format == cli.FormatText {
		fmt.Fprintf(w, "\n%d record(s)\n", len(records))
	}
	return closeOut()
}

func exportEvidence(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, settings, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	exp, err := export.ForFormat(evidenceFlags.format, settings.pretty)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	q, err := evidenceQuery(settings.maxLimit)
	if err != nil {
		return err
	}

	w, closeOut, err := output(cmd)
	if err != nil {
		return cli.NewCommandError("evidence export", err)
	}
	if err := export.Stream(ctx, store, q, exp, w); err != nil {
		closeOut()
		return cli.NewCommandError("evidence export", err)
	}
	return closeOut()
}

func pruneEvidence(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, settings, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	rc := retentionConfig(&settings.retention)
	if evidenceFlags.days >= 0 {
		rc.RetentionDays = evidenceFlags.days
	}
	if evidenceFlags.maxRecords >= 0 {
		rc.MaxRecords = evidenceFlags.maxRecords
	}

	deleted, err := retention.NewPruner(store, rc).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("evidence prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d record(s)\n", deleted)
	return nil
}
