package serverconf

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultConfigPath is where the application server config lives on a
// standard installation.
const DefaultConfigPath = "/etc/odoo/odoo.conf"

// DefaultDataDir is used when the server config is absent or does not set
// data_dir.
const DefaultDataDir = "/opt/odoo/data"

// ResolveDataDir determines the host's persistent data root. configPath may
// be empty, in which case DefaultConfigPath is consulted. A missing config
// file is not an error; the hardcoded default applies.
func ResolveDataDir(configPath string) (string, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	file, err := os.Open(configPath)
	if os.IsNotExist(err) {
		return DefaultDataDir, nil
	}
	if err != nil {
		return "", fmt.Errorf("could not read server config at %s: %w", configPath, err)
	}
	defer file.Close()

	dataDir, err := scanDataDir(file)
	if err != nil {
		return "", fmt.Errorf("could not parse server config at %s: %w", configPath, err)
	}
	if dataDir == "" {
		return DefaultDataDir, nil
	}
	return dataDir, nil
}

// scanDataDir reads an ini-style key = value stream and returns the value of
// the data_dir key, or "" if the key is not present. Section headers and
// comments are skipped; only data_dir is of interest here.
func scanDataDir(file *os.File) (string, error) {
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		if strings.TrimSpace(key) == "data_dir" {
			return strings.TrimSpace(value), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", nil
}
