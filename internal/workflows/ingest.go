package workflows

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"paperlens/internal/activities"
	"paperlens/internal/ingest"
	"paperlens/internal/providers"
)

const QueryGetIngestProgress = "GetIngestProgress"

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// PaperIngestWorkflow drives one paper through fetch, extraction, selection,
// embedding, and persistence. Source failures never abort the run; the only
// fatal outcomes are an empty section set and an empty chunk set.
func PaperIngestWorkflow(ctx workflow.Context, input PaperIngestInput) (IngestResult, error) {
	progress := IngestProgress{
		PaperID:     input.PaperID,
		CurrentStep: "init",
		Status:      "processing",
		Sources:     map[string]string{},
		Steps:       map[string]string{},
		RetryCounts: map[string]int{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestProgress, func() (IngestProgress, error) {
		return progress, nil
	}); err != nil {
		return IngestResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	result := IngestResult{PaperID: input.PaperID, Status: "processing"}

	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "fetching",
	}).Get(ctx, nil)

	// Metadata, mirror, and raw document have no ordering dependency.
	progress.CurrentStep = "fetch"
	progress.Steps[progress.CurrentStep] = "processing"
	metaFuture := workflow.ExecuteActivity(withTimeout(ctx, 25*time.Second), "FetchMetadataActivity", activities.FetchMetadataInput{PaperID: input.PaperID})
	htmlFuture := workflow.ExecuteActivity(withTimeout(ctx, 25*time.Second), "FetchHTMLActivity", activities.FetchHTMLInput{PaperID: input.PaperID})
	docFuture := workflow.ExecuteActivity(withTimeout(ctx, 90*time.Second), "FetchDocumentActivity", activities.FetchDocumentInput{PaperID: input.PaperID})

	var metaOut activities.FetchMetadataOutput
	if err := metaFuture.Get(ctx, &metaOut); err != nil {
		metaOut = activities.FetchMetadataOutput{Reason: err.Error()}
	}
	var htmlOut activities.FetchHTMLOutput
	if err := htmlFuture.Get(ctx, &htmlOut); err != nil {
		htmlOut = activities.FetchHTMLOutput{Reason: err.Error()}
	}
	var docOut activities.FetchDocumentOutput
	if err := docFuture.Get(ctx, &docOut); err != nil {
		docOut = activities.FetchDocumentOutput{Reason: err.Error()}
	}
	progress.Sources["metadata"] = availability(metaOut.Available, metaOut.Reason)
	progress.Sources["html_mirror"] = availability(htmlOut.Available, htmlOut.Reason)
	progress.Sources["document"] = availability(docOut.Available, docOut.Reason)
	progress.Steps[progress.CurrentStep] = "done"

	// Structure extraction and raw-text extraction both need the document
	// and run concurrently; mirror parsing is independent of both.
	progress.CurrentStep = "extract"
	progress.Steps[progress.CurrentStep] = "processing"
	var structureFuture, pdfFuture workflow.Future
	if docOut.Available {
		structureFuture = workflow.ExecuteActivity(withTimeout(ctx, 75*time.Second), "ExtractStructureActivity", activities.ExtractStructureInput{PDFPath: docOut.Path})
		pdfFuture = workflow.ExecuteActivity(withTimeout(ctx, 2*time.Minute), "ExtractPDFTextActivity", activities.ExtractPDFTextInput{PDFPath: docOut.Path})
	}
	var mirrorFuture workflow.Future
	if htmlOut.Available {
		mirrorFuture = workflow.ExecuteActivity(ctx, "ExtractHTMLActivity", activities.ExtractHTMLInput{HTML: htmlOut.HTML})
	}

	sources := ingest.SourceSet{}
	if structureFuture != nil {
		var out activities.ExtractStructureOutput
		if err := structureFuture.Get(ctx, &out); err == nil && out.Available {
			sources.Structure = ingest.Available(out.Result)
		} else {
			progress.Sources["structure"] = failureReason(out.Reason, err)
		}
	}
	if mirrorFuture != nil {
		var out activities.ExtractHTMLOutput
		if err := mirrorFuture.Get(ctx, &out); err == nil && out.Available {
			sources.Mirror = ingest.Available(out.Result)
		} else {
			progress.Sources["mirror_parse"] = failureReason(out.Reason, err)
		}
	}
	var rawOut activities.ExtractPDFTextOutput
	if pdfFuture != nil {
		if err := pdfFuture.Get(ctx, &rawOut); err == nil && rawOut.Available {
			sources.RawText = ingest.Available(rawOut.Result)
		} else {
			progress.Sources["raw_text"] = failureReason(rawOut.Reason, err)
		}
	}
	progress.Steps[progress.CurrentStep] = "done"

	// OCR is gated on the scan heuristic, which needs the raw-text result;
	// it is sequenced, never raced.
	if docOut.Available {
		progress.CurrentStep = "scan_decision"
		progress.Steps[progress.CurrentStep] = "processing"
		rawEmpty := !sources.RawText.Available || rawOut.Result.CombinedTextLen() == 0
		var scanOut activities.EvaluateScanOutput
		if err := workflow.ExecuteActivity(ctx, "EvaluateScanActivity", activities.EvaluateScanInput{
			Pages:    rawOut.Result.Pages,
			RawEmpty: rawEmpty,
			ForceOCR: input.ForceOCR,
		}).Get(ctx, &scanOut); err == nil {
			progress.Steps[progress.CurrentStep] = "done"
			if scanOut.AttemptOCR && scanOut.OCRConfigured {
				progress.CurrentStep = "ocr"
				progress.Steps[progress.CurrentStep] = "processing"
				var ocrOut activities.RunOCROutput
				ocrErr := workflow.ExecuteActivity(withTimeout(ctx, 100*time.Second), "RunOCRActivity", activities.RunOCRInput{PDFPath: docOut.Path}).Get(ctx, &ocrOut)
				if ocrErr != nil {
					progress.Sources["ocr"] = "unavailable: " + ocrErr.Error()
					progress.Steps[progress.CurrentStep] = "failed"
				} else {
					sources.OCR = ingest.Available(ocrOut.Result)
					progress.Sources["ocr"] = "ok"
					progress.Steps[progress.CurrentStep] = "done"
				}
			}
		} else {
			progress.Steps[progress.CurrentStep] = "failed"
		}
	}

	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "selecting", Metadata: metaOut.Metadata,
	}).Get(ctx, nil)

	progress.CurrentStep = "select_and_resolve"
	progress.Steps[progress.CurrentStep] = "processing"
	var selOut activities.SelectAndResolveOutput
	if err := workflow.ExecuteActivity(ctx, "SelectAndResolveActivity", activities.SelectAndResolveInput{
		PaperID: input.PaperID,
		Sources: sources,
	}).Get(ctx, &selOut); err != nil {
		if isIngestionFailure(err) {
			return failIngest(ctx, &progress, result, input, metaOut, err.Error())
		}
		return IngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"
	progress.ChunkCount = len(selOut.Bundle.Chunks)
	result.SectionSource = string(selOut.SectionSource)
	result.FigureSource = string(selOut.FigureSource)
	result.ReferenceSource = string(selOut.ReferenceSource)

	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "embedding", Metadata: metaOut.Metadata,
	}).Get(ctx, nil)

	progress.CurrentStep = "embed_chunks"
	progress.Steps[progress.CurrentStep] = "processing"
	chunkIDs := make([]string, 0, len(selOut.Bundle.Chunks))
	texts := make([]string, 0, len(selOut.Bundle.Chunks))
	for _, c := range selOut.Bundle.Chunks {
		chunkIDs = append(chunkIDs, c.ChunkID)
		texts = append(texts, c.Text)
	}
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	state := newProviderState()
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
		Operation: "ingest_embed",
		PaperID:   input.PaperID,
		ChunkIDs:  chunkIDs,
		Texts:     texts,
	}, progress.RetryCounts)
	if err != nil {
		return IngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"

	progress.CurrentStep = "upsert"
	progress.Steps[progress.CurrentStep] = "processing"
	var upsertOut activities.UpsertPaperBundleOutput
	if err := workflow.ExecuteActivity(ctx, "UpsertPaperBundleActivity", activities.UpsertPaperBundleInput{
		PaperID:  input.PaperID,
		Metadata: metaOut.Metadata,
		Bundle:   selOut.Bundle,
		Vectors:  embedOut.Vectors,
	}).Get(ctx, &upsertOut); err != nil {
		return IngestResult{}, err
	}
	progress.Steps[progress.CurrentStep] = "done"
	result.ChunkCount = upsertOut.ChunkCount
	result.FigureCount = upsertOut.FigureCount
	result.ReferenceCount = upsertOut.ReferenceCount

	progress.CurrentStep = "write_manifest"
	progress.Steps[progress.CurrentStep] = "processing"
	var manifestOut activities.WriteIngestManifestOutput
	if err := workflow.ExecuteActivity(ctx, "WriteIngestManifestActivity", activities.WriteIngestManifestInput{
		PaperID: input.PaperID,
		Manifest: map[string]any{
			"paper_id":         input.PaperID,
			"status":           "ready",
			"sources":          progress.Sources,
			"section_source":   result.SectionSource,
			"figure_source":    result.FigureSource,
			"reference_source": result.ReferenceSource,
			"chunk_count":      result.ChunkCount,
			"figure_count":     result.FigureCount,
			"reference_count":  result.ReferenceCount,
			"embed_provider":   embedOut.ProviderName,
			"embed_model":      embedOut.Model,
			"document_sha256":  docOut.SHA256,
			"generated_at":     workflow.Now(ctx),
		},
	}).Get(ctx, &manifestOut); err == nil {
		result.ManifestPath = manifestOut.Path
	}
	progress.Steps[progress.CurrentStep] = "done"

	if err := workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "ready", Metadata: metaOut.Metadata,
	}).Get(ctx, nil); err != nil {
		return IngestResult{}, err
	}
	progress.CurrentStep = "done"
	progress.Status = "ready"
	result.Status = "ready"
	return result, nil
}

func failIngest(ctx workflow.Context, progress *IngestProgress, result IngestResult, input PaperIngestInput, metaOut activities.FetchMetadataOutput, reason string) (IngestResult, error) {
	progress.Status = "failed"
	progress.FailReason = reason
	progress.Steps[progress.CurrentStep] = "failed"
	result.Status = "failed"
	result.FailReason = reason
	_ = workflow.ExecuteActivity(ctx, "UpdatePaperStatusActivity", activities.UpdatePaperStatusInput{
		PaperID: input.PaperID, Status: "failed", FailReason: reason, Metadata: metaOut.Metadata,
	}).Get(ctx, nil)
	_ = workflow.ExecuteActivity(ctx, "WriteIngestManifestActivity", activities.WriteIngestManifestInput{
		PaperID: input.PaperID,
		Manifest: map[string]any{
			"paper_id":     input.PaperID,
			"status":       "failed",
			"fail_reason":  reason,
			"sources":      progress.Sources,
			"generated_at": workflow.Now(ctx),
		},
	}).Get(ctx, nil)
	return result, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int) (activities.EmbedChunksOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		if err == nil {
			_ = workflow.ExecuteActivity(ctx, "LogGenerationActivity", activities.LogGenerationInput{
				Operation: input.Operation, PaperID: input.PaperID,
				ProviderName: out.ProviderName, Model: out.Model,
				RequestID: fmt.Sprintf("%s-%d", input.Operation, attempt), Status: "ok",
			}).Get(ctx, nil)
			return out, nil
		}
		lastErr = err
		errType := providers.ClassifyError(err)
		_ = workflow.ExecuteActivity(ctx, "LogGenerationActivity", activities.LogGenerationInput{
			Operation: input.Operation, PaperID: input.PaperID,
			ProviderName: fmt.Sprintf("provider-%d", idx),
			RequestID:    fmt.Sprintf("%s-%d", input.Operation, attempt),
			Status:       "failed", ErrorType: string(errType),
		}).Get(ctx, nil)
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch errType {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embed providers exhausted")
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func withTimeout(ctx workflow.Context, d time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: d,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	})
}

func isIngestionFailure(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "ingestion failed")
}

func availability(ok bool, reason string) string {
	if ok {
		return "ok"
	}
	if reason == "" {
		reason = "unavailable"
	}
	return "unavailable: " + reason
}

func failureReason(reason string, err error) string {
	if err != nil {
		return "unavailable: " + err.Error()
	}
	if reason == "" {
		reason = "unavailable"
	}
	return "unavailable: " + reason
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
