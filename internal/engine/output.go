package engine

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/artpar/bluegreen/internal/core/slot"
)

// Status output formats.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// writeStatus renders the status projection in the requested format.
func writeStatus(w io.Writer, s slot.Status, format string) error {
	switch format {
	case "", OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrUsage, format)
	}
}
