package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"pingpong/internal/certs"
)

var genCertsOpts struct {
	certPath string
	keyPath  string
}

var genCertsCmd = &cobra.Command{
	Use:   "gen-certs",
	Short: "Write a self-signed certificate for the server",
	Long: `Generate an ECDSA P-256 certificate for "localhost", valid from two days ago
until two days from now, and write it with its private key as PEM files.
The base64 SHA-256 fingerprint of the public key is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		certPath, keyPath := cfg.CertPath, cfg.KeyPath
		if cmd.Flags().Changed("certificate-path") {
			certPath = genCertsOpts.certPath
		}
		if cmd.Flags().Changed("key-path") {
			keyPath = genCertsOpts.keyPath
		}

		fingerprint, err := certs.Generate(certPath, keyPath)
		if err != nil {
			return err
		}
		logger.Info("certificate_generated", "cert_path", certPath, "key_path", keyPath)
		fmt.Fprintf(cmd.OutOrStdout(), "certificate: %s\nkey:         %s\nfingerprint: %s\n", certPath, keyPath, fingerprint)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genCertsCmd)

	genCertsCmd.Flags().StringVar(&genCertsOpts.certPath, "certificate-path", "cert.pem", "where to write the certificate")
	genCertsCmd.Flags().StringVar(&genCertsOpts.keyPath, "key-path", "key.pem", "where to write the private key")
}
