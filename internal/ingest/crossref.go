package ingest

import (
	"regexp"
	"strings"

	"paperlens/internal/extract"
	"paperlens/internal/models"
)

var (
	figureMentionRe = regexp.MustCompile(`(?i)\b(?:Figure|Fig\.?)\s+(\d+[a-zA-Z]?)`)
	tableMentionRe  = regexp.MustCompile(`(?i)\bTable\s+(\d+[a-zA-Z]?)`)
)

// ResolveCrossReferences links free-text figure/table mentions in paragraph
// text to the selected figure records, and enriches figures missing a page
// number from raw-text caption matches. Sections and figures routinely come
// from different extractors that share no identifiers, so all matching goes
// through normalized label keys.
func ResolveCrossReferences(sel *Selection, captions []models.CaptionMatch) {
	lookup := figureLookup(sel.Figures)

	for si := range sel.Sections {
		for pi := range sel.Sections[si].Paragraphs {
			par := &sel.Sections[si].Paragraphs[pi]
			par.FigureIDs = mergeMentions(par.FigureIDs, par.Text, lookup)
		}
	}

	enrichFigurePages(sel.Figures, captions)
}

// figureLookup maps normalized label keys to canonical figure IDs. Keys come
// from each figure's label first, then its caption's leading label as a
// secondary alias. First figure to claim a key wins.
func figureLookup(figures []models.PaperFigure) map[string]string {
	lookup := map[string]string{}
	claim := func(key, id string) {
		if key == "" {
			return
		}
		if _, taken := lookup[key]; !taken {
			lookup[key] = id
		}
	}
	for _, fig := range figures {
		for _, key := range figureKeys(fig) {
			claim(key, fig.ID)
		}
	}
	return lookup
}

// figureKeys derives every normalized key a figure can be addressed by: its
// label, its raw ID, and its caption's leading label line.
func figureKeys(fig models.PaperFigure) []string {
	var keys []string
	add := func(k string) {
		if k == "" {
			return
		}
		for _, existing := range keys {
			if existing == k {
				return
			}
		}
		keys = append(keys, k)
	}
	kind := figureKind(fig)
	add(extract.NormalizeLabelKey(kind, fig.Label))
	add(extract.NormalizeLabelKey(kind, fig.ID))
	if m := figureMentionRe.FindStringSubmatch(fig.Caption); m != nil {
		add(extract.NormalizeLabelKey(models.CaptionFigure, m[1]))
	}
	if m := tableMentionRe.FindStringSubmatch(fig.Caption); m != nil {
		add(extract.NormalizeLabelKey(models.CaptionTable, m[1]))
	}
	return keys
}

func figureKind(fig models.PaperFigure) models.CaptionKind {
	probe := strings.ToLower(fig.Label + " " + fig.ID)
	if strings.Contains(probe, "tab") || strings.Contains(probe, ".t") {
		return models.CaptionTable
	}
	return models.CaptionFigure
}

// mergeMentions scans paragraph text for figure/table mentions, resolves
// each through the lookup table, and appends resolved IDs not already on the
// paragraph. Unresolvable mentions are ignored.
func mergeMentions(existing []string, text string, lookup map[string]string) []string {
	seen := map[string]struct{}{}
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	out := existing
	appendMatch := func(kind models.CaptionKind, token string) {
		id, ok := lookup[extract.NormalizeLabelKey(kind, token)]
		if !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, m := range figureMentionRe.FindAllStringSubmatch(text, -1) {
		appendMatch(models.CaptionFigure, m[1])
	}
	for _, m := range tableMentionRe.FindAllStringSubmatch(text, -1) {
		appendMatch(models.CaptionTable, m[1])
	}
	return out
}

// enrichFigurePages backfills missing page numbers (and missing captions)
// from raw-text caption matches. Strategies in preference order: identical
// ID, normalized-label key overlap, caption-prefix containment. The last one
// covers captions one extractor truncated and another did not.
func enrichFigurePages(figures []models.PaperFigure, captions []models.CaptionMatch) {
	if len(captions) == 0 {
		return
	}
	byID := map[string]models.CaptionMatch{}
	byKey := map[string]models.CaptionMatch{}
	for _, c := range captions {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
		if c.Key != "" {
			if _, dup := byKey[c.Key]; !dup {
				byKey[c.Key] = c
			}
		}
	}

	for i := range figures {
		fig := &figures[i]
		if fig.Page != nil {
			continue
		}
		match, ok := byID[fig.ID]
		if !ok {
			for _, key := range figureKeys(*fig) {
				if m, hit := byKey[key]; hit {
					match, ok = m, true
					break
				}
			}
		}
		if !ok {
			match, ok = captionPrefixMatch(*fig, captions)
		}
		if !ok {
			continue
		}
		page := match.Page
		fig.Page = &page
		if fig.Caption == "" {
			fig.Caption = match.Caption
		}
	}
}

// captionPrefixMatch compares caption texts directly: a hit when either
// caption is a prefix of the other after normalization. Requires a minimum
// overlap so bare labels do not match everything.
func captionPrefixMatch(fig models.PaperFigure, captions []models.CaptionMatch) (models.CaptionMatch, bool) {
	const minOverlap = 20
	figCap := normalizeCaptionText(fig.Caption)
	if len(figCap) < minOverlap {
		return models.CaptionMatch{}, false
	}
	for _, c := range captions {
		candCap := normalizeCaptionText(c.Caption)
		if len(candCap) < minOverlap {
			continue
		}
		if strings.HasPrefix(figCap, candCap) || strings.HasPrefix(candCap, figCap) {
			return c, true
		}
	}
	return models.CaptionMatch{}, false
}

func normalizeCaptionText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
