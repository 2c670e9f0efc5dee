package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sotakeda/bounce/internal/rallylog"
)

// Initialize creates the rally log directory and materializes the default
// template file when absent. It reports whether a new template was written.
// This function is idempotent - safe to call multiple times.
func Initialize(logDir, templatePath string) (bool, error) {
	for _, dir := range requiredDirs(logDir, templatePath) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	created, err := rallylog.EnsureTemplate(templatePath)
	if err != nil {
		return false, err
	}
	return created, nil
}

// IsInitialized checks if the log directory and template file both exist
func IsInitialized(logDir, templatePath string) (bool, error) {
	info, err := os.Stat(logDir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check directory %s: %w", logDir, err)
	}
	if !info.IsDir() {
		return false, nil
	}

	finfo, err := os.Stat(templatePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check template %s: %w", templatePath, err)
	}
	return !finfo.IsDir(), nil
}

func requiredDirs(logDir, templatePath string) []string {
	dirs := []string{logDir}
	if td := filepath.Dir(templatePath); td != logDir {
		dirs = append(dirs, td)
	}
	return dirs
}
