package config

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"
)

func durationEncoderOption() yaml.EncodeOption {
	return yaml.CustomMarshaler[time.Duration](
		func(d time.Duration) ([]byte, error) {
			return yaml.Marshal(d.String())
		},
	)
}

// Print writes the effective configuration as YAML.
func (c *Config) Print(w io.Writer) error {
	out, err := yaml.MarshalWithOptions(c, durationEncoderOption())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
