// Package credential handles password storage in the OS keyring.
package credential

import (
	"github.com/zalando/go-keyring"
)

const keyringService = "mongoscope"

// Service stores connection passwords keyed by connection signature.
type Service struct{}

// NewService creates a new credential service.
func NewService() *Service {
	return &Service{}
}

// SetPassword stores a password in the OS keyring. An empty password removes
// any stored one.
func (s *Service) SetPassword(signature, password string) error {
	if password == "" {
		_ = keyring.Delete(keyringService, signature)
		return nil
	}
	return keyring.Set(keyringService, signature, password)
}

// GetPassword retrieves a password from the OS keyring. An unknown signature
// is an empty password, not an error.
func (s *Service) GetPassword(signature string) (string, error) {
	password, err := keyring.Get(keyringService, signature)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	return password, err
}

// DeletePassword removes a password from the OS keyring.
func (s *Service) DeletePassword(signature string) error {
	err := keyring.Delete(keyringService, signature)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}
