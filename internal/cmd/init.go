package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"rehome.io/rehome-cli/internal/config"
	"rehome.io/rehome-cli/internal/signing"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap config and signing keys",
	Long: `Creates ~/.rehome with a default config.yaml and an Ed25519 keypair for
signing restore reports. Existing files are never overwritten.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := config.Path()
		if err != nil {
			return err
		}
		baseDir := filepath.Dir(configPath)

		if err := os.MkdirAll(filepath.Join(baseDir, "keys"), 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", baseDir, err)
		}

		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("a config file already exists at %s", configPath)
		}

		pubKey, privKey, err := signing.GenerateSigningKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate signing key pair: %w", err)
		}

		privKeyPath := filepath.Join(baseDir, "keys", "signing.key")
		pubKeyPath := filepath.Join(baseDir, "keys", "signing.pub")

		cfg := config.Default()
		cfg.Signing.PrivateKeyPath = privKeyPath

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		if err := os.WriteFile(configPath, yamlData, 0o644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("✓ Wrote config to %s\n", configPath)

		if err := os.WriteFile(privKeyPath, privKey, 0o600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		if err := os.WriteFile(pubKeyPath, pubKey, 0o644); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
		fmt.Printf("✓ Wrote signing keys to %s and %s\n", privKeyPath, pubKeyPath)
		fmt.Println("\nReview config.yaml and adjust the postgres section for this host.")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
