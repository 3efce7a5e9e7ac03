package main

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	"nanogov/governor/pkg/policy/signature"
)

var keysFlags struct {
	output    string
	keyID     string
	algorithm string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage policy signing keys",
	Long: `Generate and inspect the key pairs used to sign policy updates.

Subcommands:
  generate - Generate a new key pair
  show     - Print the algorithm and fingerprint of a public key

Examples:
  # Generate a Dilithium2 key pair
  governor keys generate --key-id authority

  # Generate an Ed25519 key pair into a custom directory
  governor keys generate --algorithm ed25519 --out /etc/governor/keys

  # Show a public key
  governor keys show keys/authority_public.pem`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new keypair",
	Long: `Generate a new key pair for policy signing.

The generated keys are saved to PEM files with restrictive permissions:
  - Public key:  0644 (readable by all)
  - Private key: 0600 (readable only by owner)

Examples:
  # Generate keypair with the default ID
  governor keys generate

  # Generate with custom ID and algorithm
  governor keys generate --key-id prod-2026 --algorithm ed25519`,
	RunE: generateKeys,
}

var keysShowCmd = &cobra.Command{
	Use:   "show <public.pem>",
	Short: "Show a public key",
	Args:  cobra.ExactArgs(1),
	RunE:  showKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysShowCmd)

	keysGenerateCmd.Flags().StringVarP(&keysFlags.output, "out", "o", "./keys", "output directory")
	keysGenerateCmd.Flags().StringVar(&keysFlags.keyID, "key-id", "authority", "key ID used in the file names")
	keysGenerateCmd.Flags().StringVarP(&keysFlags.algorithm, "algorithm", "a", signature.AlgorithmDilithium2, "signature algorithm: dilithium2, ed25519")
}

func generateKeys(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generating %s keypair...\n\n", keysFlags.algorithm)

	kp, err := signature.GenerateKey(keysFlags.algorithm)
	if err != nil {
		return cli.NewConfigError("algorithm", err.Error())
	}
	publicPath, privatePath, err := signature.WriteKeyPair(keysFlags.output, keysFlags.keyID, kp)
	if err != nil {
		return cli.NewCommandError("keys generate", err)
	}

	fmt.Fprintf(out, "Key ID: %s\n", keysFlags.keyID)
	fmt.Fprintf(out, "Fingerprint: %s\n", fingerprint(kp.PublicKey))
	fmt.Fprintf(out, "Public Key:  %s\n", publicPath)
	fmt.Fprintf(out, "Private Key: %s\n", privatePath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "⚠️  Warning: Store private key securely and never commit to version control")
	fmt.Fprintln(out, "✓  Keys generated successfully")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration snippet:")
	fmt.Fprintln(out, "signature:")
	fmt.Fprintln(out, "  trusted_keys:")
	fmt.Fprintf(out, "    - %q\n", publicPath)
	return nil
}

func showKey(cmd *cobra.Command, args []string) error {
	alg, key, err := signature.LoadPublicKey(args[0])
	if err != nil {
		return cli.NewCommandError("keys show", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Algorithm:   %s\n", alg)
	fmt.Fprintf(out, "Size:        %d bytes\n", len(key))
	fmt.Fprintf(out, "Fingerprint: %s\n", fingerprint(key))
	fmt.Fprintf(out, "Base64:      %s\n", base64.StdEncoding.EncodeToString(key))
	return nil
}

// fingerprint is the first 16 hex digits of the key's SHA-256.
func fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}
