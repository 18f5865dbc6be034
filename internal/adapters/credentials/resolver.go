// Package credentials resolves account references to login identities from a
// YAML accounts file. The file is re-read on every resolve so rotated
// passwords take effect without a restart.
package credentials

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skuflow/skuflow/internal/domain/model"
)

type accountsFile struct {
	Accounts []model.AccountCredentials `yaml:"accounts"`
}

// FileResolver resolves credentials from a YAML file on disk.
type FileResolver struct {
	path string
}

// NewFileResolver creates a resolver reading from path.
func NewFileResolver(path string) (*FileResolver, error) {
	if path == "" {
		return nil, fmt.Errorf("accounts file path is required")
	}
	return &FileResolver{path: path}, nil
}

// Resolve returns the credentials for accountRef, or model.ErrAccountNotFound.
func (r *FileResolver) Resolve(_ context.Context, accountRef string) (*model.AccountCredentials, error) {
	if accountRef == "" {
		return nil, fmt.Errorf("account ref is required")
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}

	for i := range file.Accounts {
		if file.Accounts[i].AccountRef == accountRef {
			creds := file.Accounts[i]
			if err := creds.Validate(); err != nil {
				return nil, fmt.Errorf("account %s: %w", accountRef, err)
			}
			return &creds, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", model.ErrAccountNotFound, accountRef)
}
