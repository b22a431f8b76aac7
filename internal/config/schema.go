package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("notiflink-config.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("notiflink-config.json")
	})
	return schema, schemaErr
}

// validateSchema checks the coerced JSON document against the embedded schema.
func validateSchema(doc []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
