package registry

import "fmt"

// ConfigError reports an invalid or unusable client configuration. Registry
// construction and reload fail fatally on it; it is never downgraded to a
// warning.
type ConfigError struct {
	File    string
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s': %s", e.File, e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}
