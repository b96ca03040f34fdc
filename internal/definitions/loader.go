package definitions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/skyfeed/skyfeed/internal/models"
)

// LoadFile reads one feed from a YAML file. A missing did defaults to defaultDID.
func LoadFile(path, defaultDID string) (*models.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var feed models.Feed
	if err := yaml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if feed.DID == "" {
		feed.DID = defaultDID
	}
	return &feed, nil
}

// LoadDir reads every *.yaml and *.yml file of dir. A missing directory holds no feeds.
func LoadDir(dir, defaultDID string) (map[string]*models.Feed, error) {
	feeds := make(map[string]*models.Feed)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return feeds, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to find definition files: %w", err)
		}
		files = append(files, matches...)
	}

	for _, file := range files {
		feed, err := LoadFile(file, defaultDID)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
		feeds[file] = feed
	}
	return feeds, nil
}

// ApplyDir applies every definition file of dir. Invalid files are logged and skipped.
func (r *Registry) ApplyDir(ctx context.Context, dir, defaultDID string) (int, error) {
	feeds, err := LoadDir(dir, defaultDID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for file, feed := range feeds {
		if _, err := r.Apply(ctx, feed); err != nil {
			r.logger.Error("Failed to apply definition file", zap.String("file", file), zap.Error(err))
			continue
		}
		applied++
	}
	r.logger.Info("Definition files applied", zap.String("dir", dir), zap.Int("applied", applied), zap.Int("files", len(feeds)))
	return applied, nil
}
