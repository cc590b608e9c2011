package evidence

import (
	"regexp"
	"strings"
)

// Identifier patterns an arXiv ID can hide behind in citation metadata.
// Order matters: URL and DOI forms are unambiguous, the bare form last
// because it can appear inside longer strings.
var arxivIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`arxiv\.org/abs/(\d{4}\.\d{4,5}(?:v\d+)?)`),
	regexp.MustCompile(`arxiv\.org/abs/([a-z-]+(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)`),
	regexp.MustCompile(`arxiv\.org/pdf/(\d{4}\.\d{4,5}(?:v\d+)?)(?:\.pdf)?`),
	regexp.MustCompile(`10\.48550/arXiv\.(\d{4}\.\d{4,5}(?:v\d+)?)`),
	regexp.MustCompile(`^(\d{4}\.\d{4,5}(?:v\d+)?)$`),
	regexp.MustCompile(`^([a-z-]+(?:\.[A-Z]{2})?/\d{7}(?:v\d+)?)$`),
}

var versionSuffixRe = regexp.MustCompile(`v\d+$`)

// ExtractArxivID pulls a normalized arXiv identifier out of a candidate
// string (URL, DOI, or bare ID). Version suffixes and a trailing .pdf are
// stripped so every version of a paper maps to one cache key.
func ExtractArxivID(candidate string) (string, bool) {
	c := strings.TrimSpace(candidate)
	if c == "" {
		return "", false
	}
	for _, re := range arxivIDPatterns {
		m := re.FindStringSubmatch(c)
		if m == nil {
			continue
		}
		id := strings.TrimSuffix(m[1], ".pdf")
		id = versionSuffixRe.ReplaceAllString(id, "")
		return id, true
	}
	return "", false
}

// ExtractArxivIDFromAny tries each candidate in order and returns the first
// identifier found.
func ExtractArxivIDFromAny(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if id, ok := ExtractArxivID(c); ok {
			return id, true
		}
	}
	return "", false
}
