package tool

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes a parsed argument map into a request struct using its
// json tags. Numbers arriving as float64 and numeric strings are converted
// to the field type.
func DecodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("building argument decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
