package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	a := &cfg.Adapters.FSBroker

	if a.MaxPayloadSize == 0 {
		return fmt.Errorf("adapters.fsbroker.max_payload_size: must be greater than 0")
	}

	rl := &a.RateLimit
	if rl.Enabled && rl.RequestsPerSecond == 0 && rl.PerClientRequestsPerSecond == 0 {
		return fmt.Errorf("adapters.fsbroker.rate_limit: enabled but no rate configured")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == a.Port {
		return fmt.Errorf("metrics.port: %d is already used by the fsbroker adapter", a.Port)
	}

	if cfg.Discovery.Enabled {
		if len(cfg.Discovery.Endpoints) == 0 {
			return fmt.Errorf("discovery.endpoints: required when discovery is enabled")
		}
		if addr := cfg.Discovery.AdvertiseAddr; addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return fmt.Errorf("discovery.advertise_addr: %w", err)
			}
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
