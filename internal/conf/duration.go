package conf

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes as a string such as "30s"
// in config files and API responses.
type Duration time.Duration

// Std returns the standard library value.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "30s" style strings, integer nanoseconds or null.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := durationFrom(v)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expected scalar duration value, got %v", value.Kind)
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: expected format like \"30s\" or \"5m\"", value.Value)
	}
	*d = Duration(parsed)
	return nil
}

func durationFrom(v any) (Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string %q: %w", value, err)
		}
		return Duration(parsed), nil
	case float64:
		return Duration(time.Duration(int64(value))), nil
	case int64:
		return Duration(time.Duration(value)), nil
	case int:
		return Duration(time.Duration(value)), nil
	default:
		return 0, fmt.Errorf("invalid duration value: %v (type %T)", v, v)
	}
}

var durationType = reflect.TypeFor[Duration]()

// DurationDecodeHook lets viper decode "30s" into Duration fields while keeping
// the default string to time.Duration and string to slice conversions.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncType(func(_, to reflect.Type, data any) (any, error) {
			if to != durationType {
				return data, nil
			}
			return durationFrom(data)
		}),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
