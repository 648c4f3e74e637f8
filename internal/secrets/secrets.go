// Package secrets resolves platform tokens from the process environment.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

var ErrMissing = errors.New("missing secret")

// Secret is a named token. Its value never leaves through fmt or slog.
type Secret struct {
	name  string
	value string
}

// FromEnv reads the variable called name. Unset or blank values fail with
// ErrMissing.
func FromEnv(name string) (Secret, error) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return Secret{}, fmt.Errorf("%w: %s", ErrMissing, name)
	}
	return Secret{name: name, value: v}, nil
}

// New wraps a value obtained elsewhere, e.g. from a secret store.
func New(name, value string) Secret { return Secret{name: name, value: value} }

func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) Name() string  { return s.name }
func (s Secret) Value() string { return s.value }

func (s Secret) String() string   { return "***" }
func (s Secret) GoString() string { return fmt.Sprintf("secrets.Secret{name: %q}", s.name) }

func (s Secret) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", s.name), slog.String("value", "***"))
}
