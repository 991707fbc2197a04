// Command agentic executes autonomous test scenarios: batch runs, scenario
// listing and validation, a file-watch mode, and a REST intake server.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env from the working directory when present.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Warn("Could not load .env file, continuing with existing environment",
				"error", err)
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
