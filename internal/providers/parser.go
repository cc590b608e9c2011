package providers

import "strings"

// ProviderRef is one entry in a failover chain parsed from configuration.
// Entries look like "openai" or "openai:research", where the suffix after
// the colon selects a named API key alias.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a pipe-separated provider chain into ordered
// refs. Blank entries are dropped; an empty chain falls back to the mock
// provider so the system stays usable without external credentials.
func ParseProviderList(raw string) []ProviderRef {
	out := make([]ProviderRef, 0, 4)
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, alias, _ := strings.Cut(part, ":")
		out = append(out, ProviderRef{
			Raw:      part,
			Name:     strings.TrimSpace(name),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
