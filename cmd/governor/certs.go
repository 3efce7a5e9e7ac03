package main

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nanogov/governor/pkg/cli"
	cryptotls "nanogov/governor/pkg/security/tls"
)

var certsFlags struct {
	hosts    string
	org      string
	validity int
	output   string
	certFile string
	keyFile  string
	caFile   string
	format   string
}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage API TLS certificates",
	Long: `Manage the TLS certificates served by "governor run".

Subcommands:
  generate - Generate a self-signed certificate for testing
  validate - Check a certificate and key pair the way the server loads it
  info     - Display certificate details

Examples:
  # Generate a certificate for localhost
  governor certs generate --host localhost,127.0.0.1

  # Validate a pair against a CA bundle
  governor certs validate --cert server.crt --key server.key --ca ca.pem

  # Inspect a certificate as JSON
  governor certs info --format json server.crt`,
}

var certsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate self-signed certificate",
	Long: `Generate a self-signed ECDSA P-256 certificate and key.

The key is written with 0600 permissions. Self-signed certificates are meant
for development and for testing mutual TLS between local nodes.`,
	RunE: generateCertificate,
}

var certsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate certificate and key",
	RunE:  validateCertificate,
}

var certsInfoCmd = &cobra.Command{
	Use:   "info <cert-file>",
	Short: "Display certificate details",
	Args:  cobra.ExactArgs(1),
	RunE:  certificateInfo,
}

func init() {
	rootCmd.AddCommand(certsCmd)
	certsCmd.AddCommand(certsGenerateCmd, certsValidateCmd, certsInfoCmd)

	certsGenerateCmd.Flags().StringVar(&certsFlags.hosts, "host", "localhost", "comma-separated hostnames and IPs")
	certsGenerateCmd.Flags().StringVar(&certsFlags.org, "org", "Governor", "organization name")
	certsGenerateCmd.Flags().IntVar(&certsFlags.validity, "validity", 365, "validity in days")
	certsGenerateCmd.Flags().StringVarP(&certsFlags.output, "output", "o", "certs", "output directory")

	certsValidateCmd.Flags().StringVar(&certsFlags.certFile, "cert", "", "certificate file (required)")
	certsValidateCmd.Flags().StringVar(&certsFlags.keyFile, "key", "", "private key file (required)")
	certsValidateCmd.Flags().StringVar(&certsFlags.caFile, "ca", "", "CA bundle the certificate must chain to")
	_ = certsValidateCmd.MarkFlagRequired("cert")
	_ = certsValidateCmd.MarkFlagRequired("key")

	certsInfoCmd.Flags().StringVar(&certsFlags.format, "format", "text", "output format: text, json")
}

func generateCertificate(cmd *cobra.Command, args []string) error {
	if certsFlags.validity < 1 {
		return fmt.Errorf("invalid validity: %d days", certsFlags.validity)
	}
	hosts := strings.Split(certsFlags.hosts, ",")
	certPEM, keyPEM, err := cryptotls.SelfSigned(hosts, certsFlags.org, time.Duration(certsFlags.validity)*24*time.Hour, time.Now())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(certsFlags.output, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	certPath := filepath.Join(certsFlags.output, "cert.pem")
	keyPath := filepath.Join(certsFlags.output, "key.pem")
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil { // #nosec G306 - certificates are public
		return fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Certificate generated: %s\n", certPath)
	fmt.Fprintf(out, "✓ Private key generated: %s\n\n", keyPath)
	fmt.Fprintln(out, "To serve the API over TLS, add to your config.yaml:")
	fmt.Fprintln(out, "---")
	fmt.Fprintln(out, "server:")
	fmt.Fprintln(out, "  tls:")
	fmt.Fprintln(out, "    enabled: true")
	fmt.Fprintf(out, "    cert_file: %q\n", certPath)
	fmt.Fprintf(out, "    key_file: %q\n", keyPath)
	return nil
}

func validateCertificate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	now := time.Now()
	cert, err := cryptotls.ValidatePair(certsFlags.certFile, certsFlags.keyFile, certsFlags.caFile, now)
	if err != nil {
		fmt.Fprintf(out, "✗ %s\n", certsFlags.certFile)
		return cli.NewCommandError("certs validate", err)
	}

	fmt.Fprintf(out, "✓ Certificate and key match: %s\n", certsFlags.certFile)
	if certsFlags.caFile != "" {
		fmt.Fprintf(out, "✓ Chains to %s\n", certsFlags.caFile)
	}
	left := cert.NotAfter.Sub(now)
	fmt.Fprintf(out, "✓ Valid until %s (%d days remaining)\n", cert.NotAfter.Format(time.RFC3339), int(left.Hours()/24))
	if left < cryptotls.ExpiryWarning {
		fmt.Fprintf(out, "⚠ Certificate expires within %d days\n", int(cryptotls.ExpiryWarning.Hours()/24))
	}
	return nil
}

// certificateSummary is the JSON shape of "certs info".
type certificateSummary struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	Serial       string    `json:"serial"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	DNSNames     []string  `json:"dns_names,omitempty"`
	IPAddresses  []string  `json:"ip_addresses,omitempty"`
	IsCA         bool      `json:"is_ca"`
	KeyAlgorithm string    `json:"key_algorithm"`
	Expired      bool      `json:"expired"`
}

func summarize(cert *x509.Certificate, now time.Time) certificateSummary {
	s := certificateSummary{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		Serial:       cert.SerialNumber.Text(16),
		NotBefore:    cert.NotBefore.UTC(),
		NotAfter:     cert.NotAfter.UTC(),
		DNSNames:     cert.DNSNames,
		IsCA:         cert.IsCA,
		KeyAlgorithm: cert.PublicKeyAlgorithm.String(),
		Expired:      now.After(cert.NotAfter),
	}
	for _, ip := range cert.IPAddresses {
		s.IPAddresses = append(s.IPAddresses, ip.String())
	}
	return s
}

func certificateInfo(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(certsFlags.format)
	if err != nil {
		return err
	}
	cert, err := cryptotls.ReadCertificate(args[0])
	if err != nil {
		return err
	}
	summary := summarize(cert, time.Now())
	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(out, summary)
	}
	printCertificate(out, args[0], summary)
	return nil
}

func printCertificate(out io.Writer, file string, s certificateSummary) {
	fmt.Fprintf(out, "Certificate: %s\n\n", file)
	fmt.Fprintf(out, "Subject:    %s\n", s.Subject)
	fmt.Fprintf(out, "Issuer:     %s\n", s.Issuer)
	fmt.Fprintf(out, "Serial:     %s\n", s.Serial)
	fmt.Fprintf(out, "Key:        %s\n", s.KeyAlgorithm)
	fmt.Fprintf(out, "CA:         %t\n", s.IsCA)
	fmt.Fprintf(out, "Not Before: %s\n", s.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not After:  %s\n", s.NotAfter.Format(time.RFC3339))
	for _, name := range s.DNSNames {
		fmt.Fprintf(out, "  - DNS: %s\n", name)
	}
	for _, ip := range s.IPAddresses {
		fmt.Fprintf(out, "  - IP:  %s\n", ip)
	}
	if s.Expired {
		fmt.Fprintln(out, "\nStatus: ✗ EXPIRED")
	} else {
		fmt.Fprintln(out, "\nStatus: ✓ Valid")
	}
}
