package provider

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeConfig decodes a factory config map into out using mapstructure
// tags. Strings such as "10m" decode into time.Duration fields and numeric
// strings into numbers, matching how values arrive from config files and
// environment variables.
func DecodeConfig(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("decode provider config: %w", err)
	}
	return nil
}
