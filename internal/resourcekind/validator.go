// Package resourcekind implements the typed resource validator (§4.5):
// draft-7 JSON Schema compilation via santhosh-tekuri/jsonschema/v6, and
// delegation to an out-of-band resource-kind controller's apply_rule/
// delete_rule RPC.
package resourcekind

import (
	"encoding/json"
	"strings"

	"github.com/nanocl-io/nanocld/internal/nerr"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles draft-7 schemas under a synthetic resource URL, since
// the jsonschema compiler addresses schemas by URL rather than by raw bytes.
type Validator struct{}

// NewValidator returns a ready-to-use schema validator. Compilation is
// cheap enough (schemas are small, version-scoped documents) that no
// compiled-schema cache is kept across calls.
func NewValidator() *Validator { return &Validator{} }

// Validate compiles schema as draft-7 and validates config against it,
// aggregating every violation into one BadRequest error (§4.5).
func (v *Validator) Validate(schema json.RawMessage, config json.RawMessage) error {
	var schemaDoc interface{}
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return nerr.BadRequest("resource kind schema is not valid JSON: " + err.Error())
	}
	var configDoc interface{}
	if err := json.Unmarshal(config, &configDoc); err != nil {
		return nerr.BadRequest("resource config is not valid JSON: " + err.Error())
	}

	const resourceURL = "nanocl://resource-kind-schema.json"
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return nerr.Internal("load resource kind schema", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nerr.BadRequest("resource kind schema does not compile: " + err.Error())
	}

	if err := compiled.Validate(configDoc); err != nil {
		return nerr.BadRequest("resource config validation failed: " + formatValidationError(err))
	}
	return nil
}

// formatValidationError flattens a jsonschema.ValidationError's causes into
// one readable line, since the raw error tree is deeply nested.
func formatValidationError(err error) string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	collectCauses(verr, &msgs)
	return strings.Join(msgs, "; ")
}

func collectCauses(verr *jsonschema.ValidationError, msgs *[]string) {
	if verr == nil {
		return
	}
	if len(verr.Causes) == 0 {
		*msgs = append(*msgs, verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectCauses(cause, msgs)
	}
}
