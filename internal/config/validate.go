// CUE schema validation code
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var defaultSchema []byte

// ErrInvalid marks configuration that does not satisfy the schema.
var ErrInvalid = errors.New("invalid configuration")

// ValidateWithCue validates a YAML configuration file using a CUE schema file.
// An empty cueFile selects the embedded schema.
func ValidateWithCue(configFile, cueFile string) error {
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	schema := defaultSchema
	if cueFile != "" {
		if schema, err = os.ReadFile(cueFile); err != nil {
			return fmt.Errorf("cannot read CUE schema: %w", err)
		}
	}
	return validateBytes(configFile, yamlBytes, schema)
}

func validateBytes(name string, yamlBytes, schemaBytes []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileBytes(schemaBytes)
	if schemaVal.Err() != nil {
		return fmt.Errorf("cannot compile CUE schema: %w", schemaVal.Err())
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema has no #Config definition")
	}

	f, err := cueyaml.Extract(name, yamlBytes)
	if err != nil {
		return fmt.Errorf("%w: cannot parse YAML config: %v", ErrInvalid, err)
	}
	configVal := ctx.BuildFile(f)
	if configVal.Err() != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, configVal.Err())
	}

	// Merge values with schema
	final := def.Unify(configVal)
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalid, err)
	}
	return nil
}
