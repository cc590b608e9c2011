package answer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Reply schemas the generation step must conform to. Providers with a
// strict schema mode get these verbatim; everyone else gets them inlined
// into the system prompt and validated after the fact.

const AnswerSchemaName = "grounded_answer"

const AnswerSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["answer", "no_direct_evidence", "citations"],
  "properties": {
    "answer": {"type": "string"},
    "no_direct_evidence": {"type": "boolean"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["chunk_id"],
        "properties": {
          "chunk_id": {"type": "string"},
          "page": {"type": ["integer", "null"]},
          "quote": {"type": "string"}
        }
      }
    }
  }
}`

const SummarySchemaName = "grounded_summary"

const SummarySchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["summary", "sections"],
  "properties": {
    "summary": {"type": "string"},
    "sections": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["heading", "text"],
        "properties": {
          "heading": {"type": "string"},
          "text": {"type": "string"},
          "citations": {
            "type": "array",
            "items": {
              "type": "object",
              "additionalProperties": false,
              "required": ["chunk_id"],
              "properties": {
                "chunk_id": {"type": "string"},
                "page": {"type": ["integer", "null"]},
                "quote": {"type": "string"}
              }
            }
          }
        }
      }
    }
  }
}`

var (
	answerSchema  = mustCompile(AnswerSchemaName, AnswerSchemaJSON)
	summarySchema = mustCompile(SummarySchemaName, SummarySchemaJSON)
)

func mustCompile(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

func validateAgainst(schema *jsonschema.Schema, data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal reply: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("reply does not match schema: %w", err)
	}
	return nil
}
