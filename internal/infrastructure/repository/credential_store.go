package repository

import (
	"devctl/internal/domain"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

const CredentialsFile = "userpass.json"

// DefaultCredentials is the record created on first boot.
var DefaultCredentials = domain.Credentials{Username: "root", Password: "123456"}

type CredentialStore struct {
	path string
}

func NewCredentialStore(stateDir string) *CredentialStore {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		log.Warn("Failed to create state directory", "dir", stateDir, "err", err)
	}
	return &CredentialStore{path: filepath.Join(stateDir, CredentialsFile)}
}

// Init returns the stored credentials, creating the default record if there is
// none. A record that cannot be decoded or has an empty field is replaced by the
// default.
func (cs *CredentialStore) Init() (domain.Credentials, error) {
	var creds domain.Credentials
	err := readJSON(cs.path, &creds)
	switch {
	case err == nil && creds.Username != "" && creds.Password != "":
		log.Debug("Loaded existing credentials", "user", creds.Username)
		return creds, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		log.Warn("Credentials record unreadable, restoring default", "err", err)
	case err == nil:
		log.Warn("Credentials record incomplete, restoring default")
	}

	if err := writeJSON(cs.path, DefaultCredentials); err != nil {
		return domain.Credentials{}, fmt.Errorf("failed to create credentials: %w", err)
	}
	log.Info("Created default credentials", "user", DefaultCredentials.Username)
	return DefaultCredentials, nil
}

func (cs *CredentialStore) Update(username, password string) (domain.Credentials, error) {
	creds := domain.Credentials{Username: username, Password: password}
	if err := writeJSON(cs.path, creds); err != nil {
		return domain.Credentials{}, fmt.Errorf("failed to update credentials: %w", err)
	}
	log.Debug("Updated credentials", "user", username)
	return creds, nil
}
