// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authflows Contributors

package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated config schema.
const SchemaID = "https://authflows.dev/schemas/config.schema.json"

// GenerateSchema reflects a JSON Schema from Config using koanf key names.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "authflows configuration"
	schema.Description = "Schema for authflows config.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal config schema")
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Wrapf(err, "parse config schema")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", doc); err != nil {
		return nil, oops.Wrapf(err, "add config schema")
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Wrapf(err, "compile config schema")
	}
	return sch, nil
})

// ValidateSchema checks YAML config data against the generated schema.
// Unknown keys and wrongly typed values are rejected. An empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		doc = map[string]any{}
	}

	// Round-trip through JSON so numbers match the validator's expectations.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return oops.Wrapf(err, "config is not representable as JSON")
	}
	instance, err := jschema.UnmarshalJSON(bytes.NewReader(normalized))
	if err != nil {
		return oops.Wrapf(err, "re-read config")
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(instance); err != nil {
		return oops.Wrapf(err, "schema validation failed")
	}
	return nil
}
