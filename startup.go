package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"charforge/core"
	"charforge/db"
)

// runStartupValidation runs the pre-flight checks and prints the colored
// summary. Returns false when the process should not continue.
func runStartupValidation(config *core.Config, conn *sql.DB) bool {
	suite := core.NewValidationSuite()

	suite.AddStep("configuration", func() (core.StepStatus, string) {
		// LoadConfig already rejected invalid values; surface the essentials.
		return core.StepPassed, fmt.Sprintf("listening on %s:%d", config.Host, config.Port)
	})

	suite.AddStep("image model key", func() (core.StepStatus, string) {
		if !strings.HasPrefix(config.OpenAIAPIKey, "sk-") {
			return core.StepWarning, "OPENAI_API_KEY does not look like an sk- key"
		}
		return core.StepPassed, ""
	})

	suite.AddStep("database", func() (core.StepStatus, string) {
		if err := conn.Ping(); err != nil {
			return core.StepFailed, err.Error()
		}
		version, dirty, err := db.MigrationVersion(conn)
		if err != nil {
			return core.StepFailed, err.Error()
		}
		if dirty {
			return core.StepFailed, fmt.Sprintf("schema version %d is dirty", version)
		}
		return core.StepPassed, fmt.Sprintf("schema version %d", version)
	})

	suite.AddStep("images directory", func() (core.StepStatus, string) {
		if err := os.MkdirAll(config.ImagesDir, 0755); err != nil {
			return core.StepFailed, err.Error()
		}
		probe := filepath.Join(config.ImagesDir, ".write-probe")
		if err := os.WriteFile(probe, nil, 0644); err != nil {
			return core.StepFailed, "directory is not writable"
		}
		os.Remove(probe)
		return core.StepPassed, config.ImagesDir
	})

	suite.AddStep("payments", func() (core.StepStatus, string) {
		if !config.PaymentsEnabled() {
			return core.StepWarning, "Stripe keys not configured, checkout disabled"
		}
		return core.StepPassed, ""
	})

	_, ok := suite.Execute()
	return ok
}
