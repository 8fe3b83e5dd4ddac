package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/omniface/omniface-go/internal/errors"
)

// GetDefaultConfigPaths returns the config search path. When one of the
// directories already holds config.yaml, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get_working_directory").
			Build()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			cwd,
			filepath.Join(homeDir, "AppData", "Roaming", "omniface"),
		}
	default:
		configPaths = []string{
			cwd,
			filepath.Join(homeDir, ".config", "omniface"),
			"/etc/omniface",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// ResolvePath expands environment variables and makes relative paths absolute
// against the working directory.
func ResolvePath(path string) string {
	expanded := os.ExpandEnv(path)
	if expanded == "" || filepath.IsAbs(expanded) {
		return expanded
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return expanded
	}
	return abs
}

// EnsureDir creates dir if missing
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryFileIO).
			Context("operation", "ensure_directory").
			FileContext(dir, 0).
			Build()
	}
	return nil
}
