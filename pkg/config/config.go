// Package config loads engine configuration from the environment. Nothing
// else in the module reads environment variables.
package config

import "os"

// Config holds engine configuration.
type Config struct {
	LogPath    string
	LockPath   string
	Redaction  string
	PolicyFile string
	HistoryDB  string
}

// FromEnv loads configuration from CORD_* environment variables.
func FromEnv() *Config {
	logPath := os.Getenv("CORD_LOG_PATH")
	if logPath == "" {
		logPath = "cord.log.jsonl"
	}

	lockPath := os.Getenv("CORD_LOCK_PATH")
	if lockPath == "" {
		lockPath = "intent.lock.json"
	}

	redaction := os.Getenv("CORD_LOG_REDACTION")
	if redaction == "" {
		redaction = "pii"
	}

	return &Config{
		LogPath:    logPath,
		LockPath:   lockPath,
		Redaction:  redaction,
		PolicyFile: os.Getenv("CORD_POLICY_FILE"),
		HistoryDB:  os.Getenv("CORD_HISTORY_DB"),
	}
}
