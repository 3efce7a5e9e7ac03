package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/policy"
)

var policyFlags struct {
	format string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect policy documents",
	Long: `Inspect policy documents without admitting them.

Subcommands:
  canonical - Print the canonical bytes a signature covers
  show      - Summarize a document and its rules
  schema    - Print the wire schema

Examples:
  # Bytes to sign, for use with external signing tools
  governor policy canonical policy.json > policy.canonical

  # Rule table
  governor policy show policy.json

  # Rules as CSV
  governor policy show --format csv policy.json`,
}

var policyCanonicalCmd = &cobra.Command{
	Use:   "canonical <file>",
	Short: "Print the canonical form of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  printCanonical,
}

var policyShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Summarize a policy document",
	Args:  cobra.ExactArgs(1),
	RunE:  showPolicy,
}

var policySchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the policy JSON Schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := cmd.OutOrStdout().Write(policy.SchemaJSON())
		return err
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCanonicalCmd, policyShowCmd, policySchemaCmd)

	policyShowCmd.Flags().StringVar(&policyFlags.format, "format", "text", "output format: text, json, csv")
}

// readPolicy decodes a document without requiring a signature.
func readPolicy(path string) (*policy.Policy, error) {
	// #nosec G304 - Inspecting operator-supplied files is the purpose of the command.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return policy.Decode(data, policy.WithSourceFile(path), policy.AllowUnsigned())
}

func printCanonical(cmd *cobra.Command, args []string) error {
	p, err := readPolicy(args[0])
	if err != nil {
		return cli.NewCommandError("policy canonical", err)
	}
	_, err = cmd.OutOrStdout().Write(p.Canonical())
	return err
}

// policyView is the printed form of a policy.
type policyView struct {
	ID          string     `json:"policy_id"`
	Version     string     `json:"version"`
	Description string     `json:"description,omitempty"`
	Enforcement []string   `json:"enforcement"`
	Size        int        `json:"size"`
	Digest      string     `json:"digest"`
	Signed      string     `json:"signed_with,omitempty"`
	Rules       []ruleView `json:"rules"`
}

type ruleView struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Condition string `json:"condition"`
	Message   string `json:"message,omitempty"`
}

func newPolicyView(p *policy.Policy) policyView {
	v := policyView{
		ID:          p.ID,
		Version:     p.Version.Original(),
		Description: p.Description,
		Enforcement: p.Enforcement.Names(),
		Size:        p.Size(),
		Digest:      p.Digest(),
		Signed:      p.Signature.Algorithm,
		Rules:       make([]ruleView, len(p.Rules)),
	}
	for i, r := range p.Rules {
		v.Rules[i] = ruleView{ID: r.ID, Action: r.Action.String(), Condition: r.Condition, Message: r.Message}
	}
	return v
}

// Table lists the rules; the header fields are printed by showPolicy.
func (v policyView) Table() cli.Table {
	t := cli.Table{Headers: []string{"RULE", "ACTION", "CONDITION", "MESSAGE"}}
	for _, r := range v.Rules {
		t.Rows = append(t.Rows, []string{r.ID, r.Action, r.Condition, r.Message})
	}
	return t
}

func showPolicy(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(policyFlags.format)
	if err != nil {
		return err
	}
	p, err := readPolicy(args[0])
	if err != nil {
		return cli.NewCommandError("policy show", err)
	}
	view := newPolicyView(p)
	out := cmd.OutOrStdout()

	if format == cli.FormatText {
		signed := view.Signed
		if signed == "" {
			signed = "unsigned"
		}
		fmt.Fprintf(out, "Policy:      %s %s\n", view.ID, view.Version)
		if view.Description != "" {
			fmt.Fprintf(out, "Description: %s\n", view.Description)
		}
		fmt.Fprintf(out, "Enforcement: %s\n", strings.Join(view.Enforcement, ", "))
		fmt.Fprintf(out, "Canonical:   %d/%d bytes, sha256 %s\n", view.Size, policy.MaxSize, view.Digest)
		fmt.Fprintf(out, "Signature:   %s\n\n", signed)
	}
	return cli.NewFormatter(format).FormatTo(out, view)
}
