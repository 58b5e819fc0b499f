package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration
// including backend settings and file accessibility. The configPath argument
// specifies the config file location to validate (empty string skips config
// file check). This calls Validate() first for basic structural validation.
func (c *Config) ValidateDeep(configPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	return criterio.ValidateStruct(
		c.validateFileAccess(configPath),
		c.validateCycle(),
		c.validateStorage(),
		c.validateDatabase(),
	)
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Buyer == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Profile",
			Item:     "buyer",
			Message:  "no buyer configured; commands need --buyer",
		})
	}

	if c.Cycle.PickupDay == c.Cycle.DeadlineDay {
		warnings = append(warnings, ValidationWarning{
			Category: "Cycle",
			Item:     "deadline_day",
			Message:  "deadline falls on the pickup weekday; edits close a full week before pickup",
		})
	}

	if c.Storage.Orders == BackendMemory || c.Storage.Drafts == BackendMemory {
		warnings = append(warnings, ValidationWarning{
			Category: "Storage",
			Message:  "memory backend does not persist between runs",
		})
	}

	return warnings
}

// validateFileAccess checks config file, data directory, and metrics output.
func (c *Config) validateFileAccess(configPath string) error {
	return criterio.ValidateStruct(
		validateConfigFile(configPath),
		criterio.Run("data_dir", c.DataDir, isDirectoryOrNotExist),
		criterio.Run("metrics.textfile", c.Metrics.Textfile, parentDirExists),
	)
}

func validateConfigFile(configPath string) error {
	if configPath == "" {
		return nil
	}

	info, err := os.Stat(configPath)
	if os.IsNotExist(err) {
		return nil // not found is fine, using defaults
	}
	if err != nil {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("cannot access: %w", err))
	}
	if info.IsDir() {
		return criterio.NewFieldErrors("config_file", fmt.Errorf("%s is a directory, not a file", configPath))
	}
	return nil
}

func (c *Config) validateCycle() error {
	cycle, err := c.ScheduleCycle()
	if err != nil {
		return criterio.NewFieldErrors("cycle", err)
	}
	if err := cycle.Validate(); err != nil {
		return criterio.NewFieldErrors("cycle", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	var errs criterio.FieldErrorsBuilder

	if c.Storage.Orders == BackendPostgres {
		if c.Storage.PostgresDSN == "" {
			errs = errs.Append("storage.postgres_dsn", fmt.Errorf("required when storage.orders is postgres"))
		} else if _, err := url.Parse(c.Storage.PostgresDSN); err != nil {
			errs = errs.Append("storage.postgres_dsn", fmt.Errorf("invalid dsn: %w", err))
		}
	}

	if c.Storage.Drafts == BackendS3 {
		if c.Storage.S3.Bucket == "" {
			errs = errs.Append("storage.s3.bucket", fmt.Errorf("required when storage.drafts is s3"))
		}
		if c.Storage.S3.Region == "" {
			errs = errs.Append("storage.s3.region", fmt.Errorf("required when storage.drafts is s3"))
		}
		if c.Storage.S3.Endpoint != "" {
			if u, err := url.Parse(c.Storage.S3.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = errs.Append("storage.s3.endpoint", fmt.Errorf("must be an absolute url"))
			}
		}
	}

	return errs.ToError()
}

func (c *Config) validateDatabase() error {
	var errs criterio.FieldErrorsBuilder
	if c.Database.MaxOpenConns < 1 {
		errs = errs.Append("database.max_open_conns", fmt.Errorf("must be at least 1"))
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = errs.Append("database.max_idle_conns", fmt.Errorf("must be between 0 and max_open_conns"))
	}
	return errs.ToError()
}

// isDirectoryOrNotExist validates that a path is a directory or doesn't exist.
func isDirectoryOrNotExist(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil // will be created
	}
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("exists but is not a directory")
	}
	return nil
}

// parentDirExists validates that the directory a file will be written to exists.
func parentDirExists(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("parent directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("parent is not a directory")
	}
	return nil
}
