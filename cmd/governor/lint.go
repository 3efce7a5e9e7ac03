package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/diag"
)

var lintFlags struct {
	dir    string
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint [files...]",
	Short: "Check policy documents",
	Long: `Check policy documents for schema and condition errors.

The lint command decodes each document the way the policy store does:
  - JSON syntax
  - Wire schema (identifiers, version, rule count and field limits)
  - Duplicate rule identifiers
  - Condition grammar, field references and literals

Signatures are not required; an unsigned document is reported as a
warning. Use "governor validate" to also verify signatures and the
canonical size ceiling.

Examples:
  # Lint single file
  governor lint policy.json

  # Lint a directory of documents
  governor lint --dir policies/

  # Reject unknown state fields and treat warnings as errors
  governor lint --strict policy.json

  # JSON output for CI/CD
  governor lint --format json policy.json`,
	RunE: lintPolicies,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of policy documents (*.json)")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "reject unknown state fields and treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult represents the outcome for a single policy document.
type ValidationResult struct {
	File     string            `json:"file"`
	Valid    bool              `json:"valid"`
	PolicyID string            `json:"policy_id,omitempty"`
	Version  string            `json:"version,omitempty"`
	Size     int               `json:"size,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError represents a single diagnostic.
type ValidationError struct {
	Location   string `json:"location,omitempty"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
	Type       string `json:"type,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (r *ValidationResult) fail(e ValidationError) {
	e.Severity = "error"
	r.Valid = false
	r.Errors = append(r.Errors, e)
}

func (r *ValidationResult) warn(e ValidationError) {
	e.Severity = "warning"
	r.Warnings = append(r.Warnings, e)
}

func lintPolicies(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(lintFlags.format)
	if err != nil {
		return err
	}
	files, err := collectFiles(args, lintFlags.dir)
	if err != nil {
		return err
	}

	results := runChecks(cmd.ErrOrStderr(), format, files, func(path string) ValidationResult {
		r, _ := lintFile(path, lintFlags.strict)
		return r
	})
	return report(cmd.OutOrStdout(), "lint", format, results, lintFlags.strict)
}

// collectFiles merges positional files with the *.json documents in dir.
func collectFiles(args []string, dir string) ([]string, error) {
	files := append([]string(nil), args...)
	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list policy files: %w", err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, cli.NewConfigError("", "no policy files given; pass files or --dir")
	}
	return files, nil
}

// runChecks applies check to every file, reporting progress on w for text
// output over more than one file.
func runChecks(w io.Writer, format cli.OutputFormat, files []string, check func(string) ValidationResult) []ValidationResult {
	var progress cli.ProgressReporter
	if format == cli.FormatText && len(files) > 1 {
		progress = cli.NewProgressReporter(w, "files")
		progress.Start(len(files))
	}

	results := make([]ValidationResult, 0, len(files))
	for _, file := range files {
		res := check(file)
		results = append(results, res)
		if progress != nil {
			progress.Step(res.Valid)
		}
	}
	if progress != nil {
		progress.Finish()
	}
	return results
}

// lintFile decodes one document and returns its diagnostics together with
// the decoded policy when decoding succeeded.
func lintFile(path string, strict bool) (ValidationResult, *policy.Policy) {
	result := ValidationResult{File: path, Valid: true}

	// #nosec G304 - Linting operator-supplied files is the purpose of the command.
	data, err := os.ReadFile(path)
	if err != nil {
		result.fail(ValidationError{Message: err.Error(), Type: string(diag.KindIO)})
		return result, nil
	}

	opts := []policy.DecodeOption{policy.WithSourceFile(path), policy.AllowUnsigned()}
	if strict {
		opts = append(opts, policy.StrictFields())
	}
	p, err := policy.Decode(data, opts...)
	if err != nil {
		result.PolicyID = policy.PolicyIDOf(err)
		addDiagnostics(&result, err)
		return result, nil
	}

	result.PolicyID = p.ID
	result.Version = p.Version.Original()
	result.Size = p.Size()
	if p.Signature.IsZero() {
		result.warn(ValidationError{
			Location:   path + "#/signature",
			Message:    "document is unsigned; the store will reject it",
			Type:       string(diag.KindSignature),
			Suggestion: "governor sign --key <private.pem> " + path,
		})
	}
	return result, p
}

// addDiagnostics records every diagnostic carried by err.
func addDiagnostics(result *ValidationResult, err error) {
	var list *diag.List
	if errors.As(err, &list) {
		for _, d := range list.Errors {
			result.fail(ValidationError{
				Location:   d.Location.String(),
				Message:    d.Message,
				Type:       string(d.Kind),
				Suggestion: d.Suggestion,
			})
		}
		return
	}
	e := ValidationError{Message: err.Error()}
	if reason := policy.ReasonOf(err); reason != "" {
		e.Type = string(reason)
	}
	result.fail(e)
}

// report prints results and fails when any document has errors, or
// warnings under strict.
func report(w io.Writer, command string, format cli.OutputFormat, results []ValidationResult, strict bool) error {
	totalErrors, totalWarnings := 0, 0
	for _, r := range results {
		totalErrors += len(r.Errors)
		totalWarnings += len(r.Warnings)
	}

	if format == cli.FormatJSON {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(w, results); err != nil {
			return err
		}
	} else {
		outputText(w, results)
		fmt.Fprintln(w, "Summary:")
		fmt.Fprintf(w, "  %d file(s), %d error(s), %d warning(s)\n", len(results), totalErrors, totalWarnings)
		if strict && totalWarnings > 0 {
			fmt.Fprintln(w, "  Strict mode enabled: treating warnings as errors")
		}
	}

	if totalErrors > 0 || (strict && totalWarnings > 0) {
		return cli.NewCommandError(command, fmt.Errorf("%d of %d document(s) failed", failed(results, strict), len(results)))
	}
	return nil
}

func failed(results []ValidationResult, strict bool) int {
	n := 0
	for _, r := range results {
		if !r.Valid || (strict && len(r.Warnings) > 0) {
			n++
		}
	}
	return n
}

func outputText(w io.Writer, results []ValidationResult) {
	for _, result := range results {
		fmt.Fprintf(w, "Checking %s...\n", result.File)

		if len(result.Errors) == 0 {
			fmt.Fprintf(w, "✓ %s %s (%d bytes canonical)\n", result.PolicyID, result.Version, result.Size)
		}
		for _, e := range result.Errors {
			printDiagnostic(w, "✗ Error", e)
		}
		for _, e := range result.Warnings {
			printDiagnostic(w, "⚠  Warning", e)
		}
		fmt.Fprintln(w)
	}
}

func printDiagnostic(w io.Writer, label string, e ValidationError) {
	fmt.Fprintf(w, "%s: %s", label, e.Message)
	if e.Type != "" {
		fmt.Fprintf(w, " [%s]", e.Type)
	}
	fmt.Fprintln(w)
	if e.Location != "" {
		fmt.Fprintf(w, "  --> %s\n", e.Location)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(w, "  = suggestion: %s\n", e.Suggestion)
	}
}
