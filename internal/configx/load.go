// Package configx decodes config files for both binaries. The format is
// chosen by file extension: .yaml/.yml go through yaml.v3, everything else
// is treated as JSON.
package configx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode unmarshals data into dst using the format implied by name.
func Decode(name string, data []byte, dst any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("decode yaml %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("decode json %s: %w", name, err)
		}
	}
	return nil
}

// LoadFile reads path and decodes it into dst.
func LoadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return Decode(path, data, dst)
}

// SetString overwrites *dst when v is non-empty.
func SetString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// SetBool overwrites *dst when v is non-nil.
func SetBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
