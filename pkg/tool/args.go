package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs converts a raw argument map into a typed argument struct.
// JSON numbers arrive as float64; weak typing lets them land in int fields.
func DecodeArgs(args map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
