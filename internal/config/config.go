package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config matches the structure of ~/.rehome/config.yaml.
type Config struct {
	Version  int      `yaml:"version"`
	Postgres Postgres `yaml:"postgres"`
	CLI      CLI      `yaml:"cli"`
	S3       *S3      `yaml:"s3,omitempty"`
	Signing  Signing  `yaml:"signing"`
}

// Postgres describes how to reach the target cluster.
type Postgres struct {
	// Host defaults to the local unix socket directory, where the admin
	// user normally has peer authentication.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AdminUser is the elevated role used for provisioning and extension
	// creation.
	AdminUser string `yaml:"admin_user"`
	// AdminPasswordEnv names the environment variable holding the admin
	// password, for clusters without peer auth. The value is read once at
	// startup and passed explicitly into each collaborator call.
	AdminPasswordEnv string `yaml:"admin_password_env,omitempty"`
	PsqlPath         string `yaml:"psql_path"`
}

type CLI struct {
	ReportDir string `yaml:"report_dir"`
}

// S3 configures archive acquisition from S3-compatible storage.
type S3 struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

type Signing struct {
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Path returns the canonical config file location.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".rehome", "config.yaml"), nil
}

// Default returns the configuration used when no config file exists: local
// postgres superuser over the unix socket, reports under ~/.rehome.
func Default() *Config {
	cfg := &Config{
		Version: 1,
		Postgres: Postgres{
			Host:      "/var/run/postgresql",
			Port:      5432,
			AdminUser: "postgres",
			PsqlPath:  "psql",
		},
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		cfg.CLI.ReportDir = filepath.Join(homeDir, ".rehome", "reports")
		cfg.Signing.PrivateKeyPath = filepath.Join(homeDir, ".rehome", "keys", "signing.key")
	}
	return cfg
}

// Load reads and parses the configuration file, falling back to defaults
// when it does not exist.
func Load() (*Config, error) {
	configPath, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", configPath, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// AdminPassword resolves the admin password from the configured environment
// variable, or "" when peer authentication applies.
func (c *Config) AdminPassword() string {
	if c.Postgres.AdminPasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Postgres.AdminPasswordEnv)
}
