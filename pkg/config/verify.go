package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema validates the config against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	// parse schema
	var schema map[string]any
	if err := json.Unmarshal([]byte(embeddedSchema), &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	// top level required properties declared by the schema
	for _, name := range requiredProps(schema) {
		v, ok := configMap[name]
		if !ok || v == nil {
			return fmt.Errorf("validation failed: %s is required by schema", name)
		}
		if arr, isArr := v.([]any); isArr && len(arr) == 0 {
			return fmt.Errorf("validation failed: %s must not be empty", name)
		}
	}

	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// requiredProps returns required properties of the root definition, following a local $ref
func requiredProps(schema map[string]any) []string {
	root := schema
	if ref, ok := schema["$ref"].(string); ok {
		if defs, ok := schema["$defs"].(map[string]any); ok {
			if def, ok := defs[strings.TrimPrefix(ref, "#/$defs/")].(map[string]any); ok {
				root = def
			}
		}
	}
	raw, _ := root["required"].([]any)
	res := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// validateRequiredFields performs basic validation of required fields
func validateRequiredFields(cfg *Config) error {
	// check server config
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.Timeout == 0 {
		return fmt.Errorf("server.timeout is required")
	}

	// check stage settings, filled by defaults on Load
	if cfg.Collection.Timeout == 0 || cfg.Collection.MaxConcurrent == 0 {
		return fmt.Errorf("collection.timeout and collection.max_concurrent are required")
	}
	if cfg.Extraction.Timeout == 0 {
		return fmt.Errorf("extraction.timeout is required")
	}
	if cfg.Extraction.MaxConcurrent == 0 {
		return fmt.Errorf("extraction.max_concurrent is required")
	}
	if cfg.Extraction.MinTextLength < 0 {
		return fmt.Errorf("extraction.min_text_length must be non-negative")
	}
	if cfg.LLM.MaxAttempts == 0 {
		return fmt.Errorf("llm.max_attempts is required")
	}
	if cfg.Publication.Label == "" {
		return fmt.Errorf("publication.label is required")
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{RequiredFromJSONSchemaTags: true}
	return r.Reflect(&Config{})
}
