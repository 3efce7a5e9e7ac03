package policy

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/policy.schema.json
var policySchemaJSON []byte

//go:embed schema/removal.schema.json
var removalSchemaJSON []byte

const (
	policySchemaURL  = "https://governor.schemas.local/policy.schema.json"
	removalSchemaURL = "https://governor.schemas.local/removal.schema.json"
)

var (
	schemaOnce     sync.Once
	compiledPolicy *jsonschema.Schema
	compiledRemove *jsonschema.Schema
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(policySchemaURL, bytes.NewReader(policySchemaJSON)); err != nil {
		panic("policy schema load failed: " + err.Error())
	}
	if err := c.AddResource(removalSchemaURL, bytes.NewReader(removalSchemaJSON)); err != nil {
		panic("removal schema load failed: " + err.Error())
	}
	compiledPolicy = c.MustCompile(policySchemaURL)
	compiledRemove = c.MustCompile(removalSchemaURL)
}

func policySchema() *jsonschema.Schema {
	schemaOnce.Do(compileSchemas)
	return compiledPolicy
}

func removalSchema() *jsonschema.Schema {
	schemaOnce.Do(compileSchemas)
	return compiledRemove
}

// SchemaJSON returns the embedded JSON Schema for policy documents.
func SchemaJSON() []byte {
	return append([]byte(nil), policySchemaJSON...)
}
