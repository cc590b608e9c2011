package providers

import "context"

type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Key   string `json:"key"`
}

// GenerateRequest carries a fully assembled prompt. JSONSchema, when set,
// asks the provider for a structured reply conforming to it; providers
// without native schema support get the schema inlined into the prompt.
type GenerateRequest struct {
	Operation  string   `json:"operation"`
	System     string   `json:"system"`
	Prompt     string   `json:"prompt"`
	Context    []string `json:"context"`
	JSONSchema string   `json:"json_schema,omitempty"`
	SchemaName string   `json:"schema_name,omitempty"`
}

type GenerateResponse struct {
	Text string `json:"text"`
}

type EmbedRequest struct {
	Operation string   `json:"operation"`
	Inputs    []string `json:"inputs"`
	Dimension int      `json:"dimension"`
}

type LLMProvider interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error)
}

type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error)
}
