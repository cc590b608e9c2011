package extract

import (
	"fmt"
	"regexp"
	"strings"

	"paperlens/internal/models"
	"paperlens/internal/util"
)

var (
	captionLineRe = regexp.MustCompile(`(?m)^\s*(Fig(?:ure)?\.?|Table)\s+(\d+[a-zA-Z]?)\s*[.:]?\s*(.*)$`)

	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
)

const maxCaptionLen = 300

// NormalizeLabelKey reduces a figure/table label to the lookup key shared by
// all sources: kind prefix plus the lowercased alphanumeric remainder of the
// label (or bare number). "Fig. 3a" and "Figure 3a" collapse to "figure:3a".
func NormalizeLabelKey(kind models.CaptionKind, labelOrNumber string) string {
	s := strings.ToLower(labelOrNumber)
	s = strings.TrimPrefix(s, "figure")
	s = strings.TrimPrefix(s, "fig.")
	s = strings.TrimPrefix(s, "fig")
	s = strings.TrimPrefix(s, "table")
	s = strings.TrimPrefix(s, "tab.")
	s = nonAlnumRe.ReplaceAllString(s, "")
	if s == "" {
		return ""
	}
	return string(kind) + ":" + s
}

// FindCaptions scans one page of raw text for figure/table caption lines.
// Captions are fuzzy here: headers, footers, and in-text mentions can match
// too, which is why these are candidates reconciled later rather than
// authoritative figure records.
func FindCaptions(pageText string, pageNumber int) []models.CaptionMatch {
	matches := captionLineRe.FindAllStringSubmatch(pageText, -1)
	out := make([]models.CaptionMatch, 0, len(matches))
	seen := map[string]struct{}{}
	for _, m := range matches {
		kind := models.CaptionFigure
		if strings.HasPrefix(strings.ToLower(m[1]), "tab") {
			kind = models.CaptionTable
		}
		number := m[2]
		key := NormalizeLabelKey(kind, number)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		caption := util.CollapseWhitespace(m[3])
		if len(caption) > maxCaptionLen {
			caption = caption[:maxCaptionLen]
		}
		label := labelForKind(kind, number)
		out = append(out, models.CaptionMatch{
			ID:      fmt.Sprintf("%s-%s-p%d", kind, strings.ToLower(number), pageNumber),
			Kind:    kind,
			Label:   label,
			Number:  number,
			Caption: caption,
			Page:    pageNumber,
			Key:     key,
		})
	}
	return out
}

func labelForKind(kind models.CaptionKind, number string) string {
	if kind == models.CaptionTable {
		return "Table " + number
	}
	return "Figure " + number
}
