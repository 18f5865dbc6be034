package model

import "errors"

// ErrAccountNotFound indicates no credentials exist for an account reference.
var ErrAccountNotFound = errors.New("account not found")

// AccountCredentials is a resolved login identity for a retail-site account.
// Instances are held in memory only for the duration of a pipeline run and
// are never written to job rows or logs.
type AccountCredentials struct {
	AccountRef string `yaml:"account_ref"`
	Email      string `yaml:"email"`
	Password   string `yaml:"password"`
}

// Validate checks that the credentials are usable for a sign-in attempt.
func (c *AccountCredentials) Validate() error {
	if c.AccountRef == "" {
		return errors.New("account_ref is required")
	}
	if c.Email == "" {
		return errors.New("email is required")
	}
	if c.Password == "" {
		return errors.New("password is required")
	}
	return nil
}
