package activities

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"paperlens/internal/config"
	"paperlens/internal/extract"
	"paperlens/internal/ingest"
	"paperlens/internal/models"
	"paperlens/internal/providers"
	"paperlens/internal/sources"
	"paperlens/internal/storage"
	"paperlens/internal/util"
)

type Activities struct {
	cfg       config.Config
	metadata  *sources.MetadataClient
	mirror    *sources.HTMLMirrorClient
	document  *sources.DocumentClient
	grobid    *extract.GrobidClient
	ocr       *extract.OCRExtractor
	paperRepo *storage.PaperRepo
	chunkRepo *storage.ChunkRepo
	figRepo   *storage.FigureRepo
	refRepo   *storage.ReferenceRepo
	auditRepo *storage.GenerationAuditRepo
	providers *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	metaTimeout := time.Duration(cfg.MetadataTimeoutSecs) * time.Second
	return &Activities{
		cfg:       cfg,
		metadata:  sources.NewMetadataClient(cfg.MetadataBaseURL, metaTimeout),
		mirror:    sources.NewHTMLMirrorClient(cfg.HTMLMirrorURL, metaTimeout),
		document:  sources.NewDocumentClient(cfg.DataRoot, time.Duration(cfg.GrobidTimeoutSecs)*time.Second),
		grobid:    extract.NewGrobidClient(cfg.GrobidURL, time.Duration(cfg.GrobidTimeoutSecs)*time.Second),
		ocr:       extract.NewOCRExtractor(cfg.OCRURL, cfg.OCRTransport, time.Duration(cfg.OCRTimeoutSecs)*time.Second),
		paperRepo: storage.NewPaperRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		figRepo:   storage.NewFigureRepo(db),
		refRepo:   storage.NewReferenceRepo(db),
		auditRepo: storage.NewGenerationAuditRepo(db),
		providers: pm,
	}, nil
}

func (a *Activities) FetchMetadataActivity(ctx context.Context, in FetchMetadataInput) (FetchMetadataOutput, error) {
	meta, err := a.metadata.Fetch(ctx, in.PaperID)
	if err != nil {
		log.Printf("ingest %s: metadata unavailable: %v", in.PaperID, err)
		return FetchMetadataOutput{Reason: err.Error()}, nil
	}
	if meta == nil {
		return FetchMetadataOutput{Reason: "paper not known to metadata feed"}, nil
	}
	return FetchMetadataOutput{Available: true, Metadata: *meta}, nil
}

func (a *Activities) FetchHTMLActivity(ctx context.Context, in FetchHTMLInput) (FetchHTMLOutput, error) {
	html, err := a.mirror.Fetch(ctx, in.PaperID)
	if err != nil {
		log.Printf("ingest %s: html mirror unavailable: %v", in.PaperID, err)
		return FetchHTMLOutput{Reason: err.Error()}, nil
	}
	if strings.TrimSpace(html) == "" {
		return FetchHTMLOutput{Reason: "no mirror page for paper"}, nil
	}
	return FetchHTMLOutput{Available: true, HTML: html}, nil
}

func (a *Activities) FetchDocumentActivity(ctx context.Context, in FetchDocumentInput) (FetchDocumentOutput, error) {
	url := in.DocumentURL
	if strings.TrimSpace(url) == "" {
		url = strings.TrimRight(a.cfg.PDFBaseURL, "/") + "/" + in.PaperID
	}
	path, sum, err := a.document.Fetch(ctx, in.PaperID, url)
	if err != nil {
		log.Printf("ingest %s: document unavailable: %v", in.PaperID, err)
		return FetchDocumentOutput{Reason: err.Error()}, nil
	}
	return FetchDocumentOutput{Available: true, Path: path, SHA256: sum}, nil
}

func (a *Activities) ExtractStructureActivity(ctx context.Context, in ExtractStructureInput) (ExtractStructureOutput, error) {
	if !a.grobid.Configured() {
		return ExtractStructureOutput{Reason: "structure service not configured"}, nil
	}
	tei, err := a.grobid.Submit(ctx, in.PDFPath)
	if err != nil {
		log.Printf("ingest: structure service unavailable: %v", err)
		return ExtractStructureOutput{Reason: err.Error()}, nil
	}
	result, err := extract.ParseTEI(tei)
	if err != nil {
		log.Printf("ingest: structure markup unparseable: %v", err)
		return ExtractStructureOutput{Reason: err.Error()}, nil
	}
	if result.Empty() {
		return ExtractStructureOutput{Reason: "structure service returned nothing usable"}, nil
	}
	return ExtractStructureOutput{Available: true, Result: result}, nil
}

func (a *Activities) ExtractHTMLActivity(ctx context.Context, in ExtractHTMLInput) (ExtractHTMLOutput, error) {
	_ = ctx
	result, err := extract.ExtractHTML(in.HTML)
	if err != nil {
		log.Printf("ingest: mirror html unparseable: %v", err)
		return ExtractHTMLOutput{Reason: err.Error()}, nil
	}
	if result.Empty() {
		return ExtractHTMLOutput{Reason: "mirror html contained no sections or figures"}, nil
	}
	return ExtractHTMLOutput{Available: true, Result: result}, nil
}

func (a *Activities) ExtractPDFTextActivity(ctx context.Context, in ExtractPDFTextInput) (ExtractPDFTextOutput, error) {
	_ = ctx
	result, err := extract.ExtractPDF(in.PDFPath)
	if err != nil {
		log.Printf("ingest: raw pdf extraction unavailable: %v", err)
		return ExtractPDFTextOutput{Reason: err.Error()}, nil
	}
	return ExtractPDFTextOutput{Available: true, Result: result}, nil
}

func (a *Activities) EvaluateScanActivity(ctx context.Context, in EvaluateScanInput) (EvaluateScanOutput, error) {
	_ = ctx
	thresholds := extract.ScanThresholds{
		MinTextPerPage:  a.cfg.ScanMinTextPerPage,
		LowTextPerPage:  a.cfg.ScanLowTextPerPage,
		HighTextPerPage: a.cfg.ScanHighTextPerPage,
		ImageRatioHigh:  a.cfg.ScanImageRatioHigh,
		ImageRatioMid:   a.cfg.ScanImageRatioMid,
	}
	decision := extract.EvaluateScan(in.Pages, thresholds)
	combined := 0
	for _, p := range in.Pages {
		combined += len(p.Text)
	}
	attempt := extract.ShouldAttemptOCR(decision, in.RawEmpty, in.ForceOCR, combined, a.cfg.OCRTextThreshold)
	return EvaluateScanOutput{
		Decision:      decision,
		AttemptOCR:    attempt,
		OCRConfigured: a.ocr.Configured(),
	}, nil
}

// RunOCRActivity is the one extraction step that surfaces failure as an
// error: a broken OCR transport should be visible in the workflow history,
// where it is caught and downgraded to "OCR unavailable".
func (a *Activities) RunOCRActivity(ctx context.Context, in RunOCRInput) (RunOCROutput, error) {
	result, err := a.ocr.ExtractFile(ctx, in.PDFPath)
	if err != nil {
		return RunOCROutput{}, err
	}
	return RunOCROutput{Result: result}, nil
}

func (a *Activities) SelectAndResolveActivity(ctx context.Context, in SelectAndResolveInput) (SelectAndResolveOutput, error) {
	_ = ctx
	sel, err := ingest.Select(in.PaperID, in.Sources)
	if err != nil {
		return SelectAndResolveOutput{}, err
	}
	ingest.ResolveCrossReferences(&sel, in.Sources.Captions())
	bundle, err := ingest.BuildChunks(in.PaperID, sel)
	if err != nil {
		return SelectAndResolveOutput{}, err
	}
	return SelectAndResolveOutput{
		Bundle:          bundle,
		SectionSource:   sel.SectionSource,
		FigureSource:    sel.FigureSource,
		ReferenceSource: sel.ReferenceSource,
	}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    in.Texts,
		Dimension: a.cfg.EmbedDim,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed with %s: %w", ref.Raw, err)
	}
	if len(vectors) != len(in.Texts) {
		return EmbedChunksOutput{}, fmt.Errorf("embed with %s: got %d vectors for %d inputs", ref.Raw, len(vectors), len(in.Texts))
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) UpsertPaperBundleActivity(ctx context.Context, in UpsertPaperBundleInput) (UpsertPaperBundleOutput, error) {
	records := storage.ChunkRecordsFromBundle(in.Bundle.Chunks)
	if len(in.Vectors) == len(records) {
		for i := range records {
			v := pgvector.NewVector(in.Vectors[i])
			records[i].EmbeddingVector = &v
		}
	}
	if err := a.chunkRepo.UpsertChunks(ctx, records); err != nil {
		return UpsertPaperBundleOutput{}, err
	}
	if err := a.figRepo.UpsertFigures(ctx, in.PaperID, in.Bundle.Figures); err != nil {
		return UpsertPaperBundleOutput{}, err
	}
	if err := a.refRepo.UpsertReferences(ctx, in.PaperID, in.Bundle.References); err != nil {
		return UpsertPaperBundleOutput{}, err
	}
	return UpsertPaperBundleOutput{
		ChunkCount:     len(in.Bundle.Chunks),
		FigureCount:    len(in.Bundle.Figures),
		ReferenceCount: len(in.Bundle.References),
	}, nil
}

func (a *Activities) UpdatePaperStatusActivity(ctx context.Context, in UpdatePaperStatusInput) error {
	rec := models.PaperRecord{
		PaperID:    in.PaperID,
		Title:      in.Metadata.Title,
		Abstract:   in.Metadata.Abstract,
		Authors:    in.Metadata.Authors,
		Status:     in.Status,
		FailReason: in.FailReason,
	}
	return a.paperRepo.UpsertPaper(ctx, rec)
}

func (a *Activities) WriteIngestManifestActivity(ctx context.Context, in WriteIngestManifestInput) (WriteIngestManifestOutput, error) {
	_ = ctx
	path := filepath.Join(a.cfg.DataRoot, "manifests", sanitizeFilename(in.PaperID)+".json")
	if err := util.WriteJSONAtomic(path, in.Manifest); err != nil {
		return WriteIngestManifestOutput{}, err
	}
	return WriteIngestManifestOutput{Path: path}, nil
}

func (a *Activities) LogGenerationActivity(ctx context.Context, in LogGenerationInput) error {
	return a.auditRepo.Insert(ctx, storage.GenerationCallRecord{
		Operation:    in.Operation,
		PaperID:      in.PaperID,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		RequestID:    in.RequestID,
		Status:       in.Status,
		ErrorType:    in.ErrorType,
	})
}

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
