// Package config reads seed settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvTableName      = "EXAM_TABLE_NAME"
	EnvExamID         = "EXAM_ID"
	EnvBundle         = "EXAM_BUNDLE"
	EnvEndpoint       = "DYNAMODB_ENDPOINT"
	EnvEventsQueueURL = "EXAM_EVENTS_QUEUE_URL"
	EnvAtomic         = "SEED_ATOMIC"
	EnvVerify         = "SEED_VERIFY"
	EnvLogLevel       = "LOG_LEVEL"
)

// Errors returned by Validate.
var (
	ErrMissingTableName = errors.New(EnvTableName + " is required")
	ErrMissingExamID    = errors.New(EnvExamID + " is required")
)

// Config holds the settings for one seed run.
type Config struct {
	TableName string
	ExamID    string
	Bundle    string
	// Endpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local.
	Endpoint       string
	EventsQueueURL string
	Atomic         bool
	Verify         bool
	LogLevel       string
}

// Load reads a .env file from the working directory if one exists, then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment without validating it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		TableName:      os.Getenv(EnvTableName),
		ExamID:         os.Getenv(EnvExamID),
		Bundle:         os.Getenv(EnvBundle),
		Endpoint:       os.Getenv(EnvEndpoint),
		EventsQueueURL: os.Getenv(EnvEventsQueueURL),
		LogLevel:       os.Getenv(EnvLogLevel),
	}

	var err error
	if cfg.Atomic, err = boolEnv(EnvAtomic, false); err != nil {
		return nil, err
	}
	if cfg.Verify, err = boolEnv(EnvVerify, true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the settings needed for a run are present.
func (c *Config) Validate() error {
	if c.TableName == "" {
		return ErrMissingTableName
	}
	if c.ExamID == "" {
		return ErrMissingExamID
	}
	return nil
}

func boolEnv(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return b, nil
}
