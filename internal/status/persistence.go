// Package status provides per-domain sync status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for sync status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the sync status of a specific domain
	SaveStatus(ctx context.Context, domain string, status *DomainStatus) error

	// LoadStatus loads the sync status of a specific domain.
	// Returns an empty DomainStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, domain string) (*DomainStatus, error)

	// LoadAllStatus loads sync status for all domains
	LoadAllStatus(ctx context.Context) (map[string]*DomainStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the base directory where per-domain status files will be stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus saves the sync status to a JSON file in a domain-specific directory
func (f *fileStatusPersistence) SaveStatus(_ context.Context, domain string, status *DomainStatus) error {
	domainDir := filepath.Join(f.basePath, domain)
	if err := os.MkdirAll(domainDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for domain '%s': %w", domain, err)
	}

	filePath := filepath.Join(domainDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for domain '%s': %w", domain, err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for domain '%s': %w", domain, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for domain '%s': %w", domain, err)
	}

	return nil
}

// LoadStatus loads the sync status from a JSON file for a specific domain
func (f *fileStatusPersistence) LoadStatus(_ context.Context, domain string) (*DomainStatus, error) {
	filePath := filepath.Join(f.basePath, domain, StatusFileName)

	// #nosec G304 -- filePath is built from basePath and a configured domain name
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &DomainStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for domain '%s': %w", domain, err)
	}

	var status DomainStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for domain '%s': %w", domain, err)
	}

	return &status, nil
}

// LoadAllStatus loads sync status for all domains that have a status directory.
// Unreadable entries are skipped so that one corrupt file does not hide the rest.
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*DomainStatus, error) {
	result := make(map[string]*DomainStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		domain := entry.Name()
		status, err := f.LoadStatus(ctx, domain)
		if err != nil {
			continue
		}
		result[domain] = status
	}

	return result, nil
}
