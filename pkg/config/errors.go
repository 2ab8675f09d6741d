package config

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMissingConfiguration is matched by every error reporting an absent setting.
var ErrMissingConfiguration = errors.New("missing configuration")

// MissingConfigurationError reports a setting that has neither a value nor a default.
type MissingConfigurationError struct {
	Section string
	Key     string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("%s: [%s] %s", ErrMissingConfiguration, e.Section, e.Key)
}

// Is makes errors.Is(err, ErrMissingConfiguration) hold for wrapped values.
func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingConfiguration
}
