package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/state"
)

var enforceFlags struct {
	checkpoint string
	state      string
	policies   []string
	format     string
}

var enforceCmd = &cobra.Command{
	Use:   "enforce",
	Short: "Enforce one state snapshot",
	Long: `Evaluate one system state snapshot at a checkpoint and exit with the
verdict code: 0 allow, 1 deny, 2 quarantine, 3 erase.

The active set is the built-in default policy plus any --policy documents,
admitted in order under the configured signature settings.

Examples:
  # Runtime check against the default policy
  governor enforce --checkpoint runtime --state state.json

  # Read the snapshot from stdin and add a signed policy
  cat state.json | governor enforce --state - --policy signed/memory.json

  # Machine-readable decision
  governor enforce --state state.json --format json`,
	RunE: enforceState,
}

func init() {
	rootCmd.AddCommand(enforceCmd)

	enforceCmd.Flags().StringVar(&enforceFlags.checkpoint, "checkpoint", "runtime", "checkpoint: compile, load, runtime, update")
	enforceCmd.Flags().StringVarP(&enforceFlags.state, "state", "s", "", "state snapshot JSON file, - for stdin")
	enforceCmd.Flags().StringArrayVarP(&enforceFlags.policies, "policy", "p", nil, "signed policy document to admit first (repeatable)")
	enforceCmd.Flags().StringVar(&enforceFlags.format, "format", "text", "output format: text, json")
	_ = enforceCmd.MarkFlagRequired("state")
}

// decisionReport is the printed form of a decision.
type decisionReport struct {
	enforce.Decision
	Code  int    `json:"code"`
	Fault string `json:"fault,omitempty"`
}

func (r decisionReport) Table() cli.Table {
	rows := [][]string{
		{"checkpoint", r.Checkpoint.String()},
		{"verdict", fmt.Sprintf("%s (%d)", r.Verdict, r.Code)},
		{"effect", r.Effect.String()},
		{"generation", strconv.FormatUint(r.Generation, 10)},
	}
	if r.Entry != nil {
		rows = append(rows,
			[]string{"policy", r.Entry.PolicyID},
			[]string{"rule", r.Entry.RuleID},
			[]string{"message", r.Entry.Message})
	}
	if r.Fault != "" {
		rows = append(rows, []string{"fault", r.Fault})
	}
	for _, e := range r.Entries {
		rows = append(rows, []string{"logged", fmt.Sprintf("#%d %s/%s %s", e.Seq, e.PolicyID, e.RuleID, e.Action)})
	}
	for _, a := range r.Anomalies {
		rows = append(rows, []string{"anomaly", fmt.Sprintf("%s/%s %s", a.PolicyID, a.RuleID, a.Anomaly)})
	}
	return cli.Table{Rows: rows}
}

func enforceState(cmd *cobra.Command, args []string) error {
	cp, ok := policy.ParseCheckpoint(enforceFlags.checkpoint)
	if !ok {
		return cli.NewConfigError("checkpoint", fmt.Sprintf("unknown checkpoint %q", enforceFlags.checkpoint))
	}
	format, err := cli.ParseOutputFormat(enforceFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	st, err := readState(cmd.InOrStdin(), enforceFlags.state)
	if err != nil {
		return cli.NewCommandError("enforce", err)
	}

	registry, err := newRegistry(&cfg.Signature)
	if err != nil {
		return err
	}
	ps, err := newStore(cfg, logger.Logger)
	if err != nil {
		return err
	}
	if _, err := applyFiles(ps, registry, enforceFlags.policies); err != nil {
		return cli.NewCommandError("enforce", err)
	}
	engine, _, err := newEngine(cfg, ps, logger.Logger)
	if err != nil {
		return cli.NewCommandError("enforce", err)
	}

	d := engine.Guard(context.Background(), cfg.Engine.Timeout, cp, st)
	report := decisionReport{Decision: d, Code: d.Verdict.Code()}
	if d.Fault != nil {
		report.Fault = d.Fault.Error()
	}
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	if d.Verdict != enforce.VerdictAllow {
		return &cli.ExitError{Code: d.Verdict.Code()}
	}
	return nil
}

// readState decodes and validates a snapshot from path, or from stdin when
// path is "-".
func readState(stdin io.Reader, path string) (*state.SystemState, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		// #nosec G304 - The snapshot path is supplied by the operator.
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}

	st := &state.SystemState{}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}
	return st, nil
}
