package executor

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// decodeConfig round-trips a StepSpec's raw config map into target (a
// pointer to one of pkg/steplibrary's *Config structs) and validates it.
// Registration already ran this check via steplibrary.Library.DecodeConfig;
// executors repeat it defensively since a dispatch may run against a
// definition version whose config schema has since evolved.
func decodeConfig(raw map[string]interface{}, target interface{}) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config is not JSON-encodable: %w", err)
	}
	if err := json.Unmarshal(buf, target); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	if err := configValidator.Struct(target); err != nil {
		return fmt.Errorf("config failed validation: %w", err)
	}
	return nil
}
