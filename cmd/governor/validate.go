package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/diag"
	"nanogov/governor/pkg/policy/signature"
)

var validateFlags struct {
	dir    string
	keys   []string
	strict bool
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check that policy documents would be admitted",
	Long: `Run every lint check, then the checks the policy store applies at
admission:
  - Canonical body within the 1024-byte ceiling
  - Signature present, in an accepted algorithm and valid over the canonical body
  - Signing key among the trusted keys, when any are configured

Trusted keys come from signature.trusted_keys in the configuration; --key adds
more for this run.

Examples:
  # Validate with the configured signature settings
  governor validate signed/policy.json

  # Pin the authority key explicitly
  governor validate --key keys/authority_public.pem signed/*.json

  # JSON output for CI/CD
  governor validate --format json --dir signed/`,
	RunE: validatePolicies,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.dir, "dir", "d", "", "directory of policy documents (*.json)")
	validateCmd.Flags().StringArrayVar(&validateFlags.keys, "key", nil, "trusted public key PEM file (repeatable)")
	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "reject unknown state fields and treat warnings as errors")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func validatePolicies(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}
	files, err := collectFiles(args, validateFlags.dir)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sigCfg := cfg.Signature
	sigCfg.TrustedKeys = append(append([]string(nil), sigCfg.TrustedKeys...), validateFlags.keys...)
	registry, err := newRegistry(&sigCfg)
	if err != nil {
		return err
	}

	results := runChecks(cmd.ErrOrStderr(), format, files, func(path string) ValidationResult {
		return validateFile(path, validateFlags.strict, registry)
	})
	return report(cmd.OutOrStdout(), "validate", format, results, validateFlags.strict)
}

// validateFile lints path and then applies the admission checks.
func validateFile(path string, strict bool, v signature.Verifier) ValidationResult {
	result, p := lintFile(path, strict)
	if p == nil {
		return result
	}
	// The unsigned warning becomes an error below.
	result.Warnings = result.Warnings[:0]

	if p.Size() > policy.MaxSize {
		result.fail(ValidationError{
			Location: path,
			Message:  fmt.Sprintf("canonical body is %d bytes, limit is %d", p.Size(), policy.MaxSize),
			Type:     string(diag.KindLimit),
		})
	}

	switch {
	case p.Signature.IsZero():
		result.fail(ValidationError{
			Location:   path + "#/signature",
			Message:    "signature is required",
			Type:       string(diag.KindSignature),
			Suggestion: "governor sign --key <private.pem> " + path,
		})
	default:
		if err := v.Verify(p.Canonical(), p.Signature); err != nil {
			result.fail(ValidationError{
				Location: path + "#/signature",
				Message:  err.Error(),
				Type:     string(diag.KindSignature),
			})
		}
	}
	return result
}
