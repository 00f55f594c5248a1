package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing   = "ENV_FILE_MISSING"
	ErrCodeConfigFile       = "CONFIG_FILE_INVALID"
	ErrCodeInvalidValue     = "INVALID_VALUE"
	ErrCodeMissingConfig    = "MISSING_CONFIG"
	ErrCodeManifestDir      = "MANIFEST_DIR_INVALID"
	ErrCodeDataDir          = "DATA_DIR_UNWRITABLE"
	ErrCodeWorkerNotFound   = "WORKER_NOT_FOUND"
	ErrCodeInvalidTokenHash = "INVALID_TOKEN_HASH"
)

// ErrEnvFileMissing returns an error for a missing PREVIEW_ENV_FILE.
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Environment file not found: %s", path),
		Action:  "Fix PREVIEW_ENV_FILE or unset it to read ./.env",
	}
}

// ErrConfigFile returns an error for an unreadable or malformed YAML file.
func ErrConfigFile(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeConfigFile,
		Message: fmt.Sprintf("Cannot load config file %s: %s", path, reason),
		Action:  "Fix the YAML file or unset PREVIEW_CONFIG_FILE",
	}
}

// ErrInvalidValue returns an error for a variable that could not be parsed
// or is out of range.
func ErrInvalidValue(key, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s: %s", describe(key, value), reason),
		Action:  fmt.Sprintf("Correct %s in your .env file or environment", key),
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// ErrManifestDir returns an error when the manifest directory cannot be used.
func ErrManifestDir(dir, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeManifestDir,
		Message: fmt.Sprintf("Manifest directory %s is not usable: %s", dir, reason),
		Action:  "Set PREVIEW_MANIFEST_DIR to a directory containing *.preview.hcl files",
	}
}

// ErrDataDirUnwritable returns an error when the data directory cannot be
// created or written.
func ErrDataDirUnwritable(dir, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDataDir,
		Message: fmt.Sprintf("Data directory %s is not writable: %s", dir, reason),
		Action:  "Set PREVIEW_DATA_DIR to a writable directory",
	}
}

// ErrWorkerNotFound returns an error when the worker executable is missing.
func ErrWorkerNotFound(path, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeWorkerNotFound,
		Message: fmt.Sprintf("Worker executable %s cannot be used: %s", path, reason),
		Action:  "Set PREVIEW_WORKER_EXECUTABLE or use PREVIEW_BACKEND=inprocess",
	}
}

// ErrInvalidTokenHash returns an error for a malformed bcrypt hash.
func ErrInvalidTokenHash(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidTokenHash,
		Message: fmt.Sprintf("PREVIEW_ACCESS_TOKEN_HASH is not a bcrypt hash: %s", reason),
		Action:  "Generate one with `previewd hash-token <token>` or leave it empty to disable auth",
	}
}

// IsConfigError checks if an error is or wraps a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
