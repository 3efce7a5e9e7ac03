package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/policy"
	"nanogov/governor/pkg/policy/signature"
)

var signFlags struct {
	key    string
	remove string
	output string
}

var signCmd = &cobra.Command{
	Use:   "sign [policy.json]",
	Short: "Sign a policy document or a removal request",
	Long: `Sign a policy document over its canonical form, or produce a signed
request that removes an active policy.

Any signature already present on the document is replaced. Removal requests
carry a fresh nonce and the current time and must be applied within the
store's removal window.

Examples:
  # Sign a policy, writing the signed document to stdout
  governor sign --key keys/authority_private.pem policy.json

  # Write to a file
  governor sign --key keys/authority_private.pem policy.json -o signed/policy.json

  # Produce a removal request
  governor sign --key keys/authority_private.pem --remove GOV-SEC-AA11BB22`,
	Args: cobra.MaximumNArgs(1),
	RunE: signDocument,
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().StringVarP(&signFlags.key, "key", "k", "", "private key PEM file")
	signCmd.Flags().StringVar(&signFlags.remove, "remove", "", "produce a removal request for this policy id")
	signCmd.Flags().StringVarP(&signFlags.output, "output", "o", "", "output file (default: stdout)")
	_ = signCmd.MarkFlagRequired("key")
}

func signDocument(cmd *cobra.Command, args []string) error {
	if (signFlags.remove == "") == (len(args) == 0) {
		return cli.NewConfigError("", "pass either a policy file or --remove <policy-id>")
	}

	kp, err := signature.LoadPrivateKey(signFlags.key)
	if err != nil {
		return cli.NewConfigError("key", err.Error())
	}
	signer, err := signature.NewSigner(kp)
	if err != nil {
		return cli.NewConfigError("key", err.Error())
	}

	var out []byte
	if signFlags.remove != "" {
		out, err = signRemoval(signer, signFlags.remove, time.Now())
	} else {
		out, err = signPolicyFile(signer, args[0])
	}
	if err != nil {
		return cli.NewCommandError("sign", err)
	}
	out = append(out, '\n')

	if signFlags.output == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	// #nosec G306 - Signed policies are public documents.
	if err := os.WriteFile(signFlags.output, out, 0o644); err != nil {
		return cli.NewCommandError("sign", fmt.Errorf("failed to write %s: %w", signFlags.output, err))
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Signed with %s key, written to %s\n", signer.Algorithm(), signFlags.output)
	return nil
}

func signPolicyFile(signer *signature.Signer, path string) ([]byte, error) {
	// #nosec G304 - Signing an operator-supplied file is the purpose of the command.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	p, err := policy.Decode(data, policy.WithSourceFile(path), policy.AllowUnsigned())
	if err != nil {
		return nil, err
	}
	if p.Size() > policy.MaxSize {
		return nil, policy.NewAdmissionError(policy.ReasonOversizePolicy, p.ID,
			fmt.Errorf("canonical body is %d bytes, limit is %d", p.Size(), policy.MaxSize))
	}
	return policy.Encode(signer.SignPolicy(p))
}

func signRemoval(signer *signature.Signer, id string, now time.Time) ([]byte, error) {
	if !policy.ValidID(id) {
		return nil, fmt.Errorf("policy id %q does not match GOV-SEC-XXXXXXXX", id)
	}
	req := policy.NewRemovalRequest(id, now)
	if err := signer.SignRemoval(req); err != nil {
		return nil, err
	}
	return json.MarshalIndent(req, "", "  ")
}
