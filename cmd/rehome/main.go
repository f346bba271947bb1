package main

import (
	"os"

	"rehome.io/rehome-cli/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
