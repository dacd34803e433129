package provider

import (
	"errors"
	"fmt"
	"os"
)

// ErrMissingCredential is returned when a required API key is not set.
var ErrMissingCredential = errors.New("missing credential")

// Credential reads the named environment variable. It is called on every
// request so keys can rotate without a restart.
func Credential(envVar string) (string, error) {
	v, ok := os.LookupEnv(envVar)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredential, envVar)
	}
	return v, nil
}
