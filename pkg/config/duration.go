package config

import "time"

// Duration wraps time.Duration to support unmarshalling from YAML duration
// strings (e.g. "15s", "500ms") rather than requiring nanosecond integers.
type Duration time.Duration

// UnmarshalText implements the text unmarshalling interface used when
// loading from YAML configuration files.
func (d *Duration) UnmarshalText(textBytes []byte) error {
	parsed, err := time.ParseDuration(string(textBytes))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements the text marshalling interface, writing the same
// duration string form that UnmarshalText accepts.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
