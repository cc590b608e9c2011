package extract

// ScanThresholds carries the characterization constants for the scan
// heuristic. Defaults live in config; tests assert these exact boundaries.
type ScanThresholds struct {
	MinTextPerPage  int
	LowTextPerPage  int
	HighTextPerPage int
	ImageRatioHigh  float64
	ImageRatioMid   float64
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

type ScanDecision struct {
	AvgTextPerPage   float64    `json:"avg_text_per_page"`
	AvgImagesPerPage float64    `json:"avg_images_per_page"`
	IsLikelyScanned  bool       `json:"is_likely_scanned"`
	Confidence       Confidence `json:"confidence"`
	SampledPages     int        `json:"sampled_pages"`
}

// scanSamplePages bounds the sample: the first pages are enough to tell a
// scanned document from a text-native one.
const scanSamplePages = 3

// EvaluateScan classifies a document as likely scanned from a bounded sample
// of raw per-page extraction results.
func EvaluateScan(pages []Page, t ScanThresholds) ScanDecision {
	sample := pages
	if len(sample) > scanSamplePages {
		sample = sample[:scanSamplePages]
	}
	d := ScanDecision{SampledPages: len(sample), Confidence: ConfidenceLow}
	if len(sample) == 0 {
		d.IsLikelyScanned = true
		return d
	}
	textTotal := 0
	imageTotal := 0
	for _, p := range sample {
		textTotal += len(p.Text)
		imageTotal += p.ImageCount
	}
	d.AvgTextPerPage = float64(textTotal) / float64(len(sample))
	d.AvgImagesPerPage = float64(imageTotal) / float64(len(sample))

	d.IsLikelyScanned = d.AvgTextPerPage < float64(t.MinTextPerPage) ||
		d.AvgImagesPerPage >= t.ImageRatioHigh ||
		(d.AvgTextPerPage < float64(t.LowTextPerPage) && d.AvgImagesPerPage >= t.ImageRatioMid)

	switch {
	case d.AvgTextPerPage > float64(t.HighTextPerPage):
		d.Confidence = ConfidenceHigh
	case d.AvgTextPerPage > float64(t.LowTextPerPage):
		d.Confidence = ConfidenceMedium
	default:
		d.Confidence = ConfidenceLow
	}
	return d
}

// ShouldAttemptOCR is the graduated gate in front of the OCR service: free
// when the raw extractor produced nothing or the caller forces it, otherwise
// only for likely-scanned documents whose extracted text is short enough
// that a rescan can plausibly add something.
func ShouldAttemptOCR(d ScanDecision, rawEmpty, forced bool, combinedTextLen, textThreshold int) bool {
	if rawEmpty || forced {
		return true
	}
	if !d.IsLikelyScanned {
		return false
	}
	switch d.Confidence {
	case ConfidenceHigh:
		return true
	case ConfidenceMedium:
		return combinedTextLen < 2*textThreshold
	default:
		return combinedTextLen < textThreshold
	}
}
