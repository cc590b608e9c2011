package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"paperlens/internal/activities"
	"paperlens/internal/extract"
	"paperlens/internal/ingest"
	"paperlens/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerIngestActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "FetchMetadataActivity", func(context.Context, activities.FetchMetadataInput) (activities.FetchMetadataOutput, error) {
		return activities.FetchMetadataOutput{}, nil
	})
	registerActivityName(env, "FetchHTMLActivity", func(context.Context, activities.FetchHTMLInput) (activities.FetchHTMLOutput, error) {
		return activities.FetchHTMLOutput{}, nil
	})
	registerActivityName(env, "FetchDocumentActivity", func(context.Context, activities.FetchDocumentInput) (activities.FetchDocumentOutput, error) {
		return activities.FetchDocumentOutput{}, nil
	})
	registerActivityName(env, "ExtractStructureActivity", func(context.Context, activities.ExtractStructureInput) (activities.ExtractStructureOutput, error) {
		return activities.ExtractStructureOutput{}, nil
	})
	registerActivityName(env, "ExtractHTMLActivity", func(context.Context, activities.ExtractHTMLInput) (activities.ExtractHTMLOutput, error) {
		return activities.ExtractHTMLOutput{}, nil
	})
	registerActivityName(env, "ExtractPDFTextActivity", func(context.Context, activities.ExtractPDFTextInput) (activities.ExtractPDFTextOutput, error) {
		return activities.ExtractPDFTextOutput{}, nil
	})
	registerActivityName(env, "EvaluateScanActivity", func(context.Context, activities.EvaluateScanInput) (activities.EvaluateScanOutput, error) {
		return activities.EvaluateScanOutput{}, nil
	})
	registerActivityName(env, "RunOCRActivity", func(context.Context, activities.RunOCRInput) (activities.RunOCROutput, error) {
		return activities.RunOCROutput{}, nil
	})
	registerActivityName(env, "SelectAndResolveActivity", func(context.Context, activities.SelectAndResolveInput) (activities.SelectAndResolveOutput, error) {
		return activities.SelectAndResolveOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertPaperBundleActivity", func(context.Context, activities.UpsertPaperBundleInput) (activities.UpsertPaperBundleOutput, error) {
		return activities.UpsertPaperBundleOutput{}, nil
	})
	registerActivityName(env, "UpdatePaperStatusActivity", func(context.Context, activities.UpdatePaperStatusInput) error { return nil })
	registerActivityName(env, "WriteIngestManifestActivity", func(context.Context, activities.WriteIngestManifestInput) (activities.WriteIngestManifestOutput, error) {
		return activities.WriteIngestManifestOutput{}, nil
	})
	registerActivityName(env, "LogGenerationActivity", func(context.Context, activities.LogGenerationInput) error { return nil })
}

func structureOutput() activities.ExtractStructureOutput {
	return activities.ExtractStructureOutput{
		Available: true,
		Result: extract.Result{
			Sections: []models.PaperSection{{
				ID: "sec-0", Title: "Introduction",
				Paragraphs: []models.SectionParagraph{{ID: "sec-0-par-000", Text: "Intro text."}},
			}},
		},
	}
}

func selectOutput(source ingest.Source) activities.SelectAndResolveOutput {
	return activities.SelectAndResolveOutput{
		Bundle: ingest.Bundle{
			Chunks: []models.PaperChunk{{PaperID: "p1", ChunkID: "sec-0-par-000", Text: "Intro text."}},
		},
		SectionSource:   source,
		FigureSource:    ingest.SourceNone,
		ReferenceSource: ingest.SourceNone,
	}
}

func TestPaperIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("FetchMetadataActivity", mock.Anything, activities.FetchMetadataInput{PaperID: "p1"}).
		Return(activities.FetchMetadataOutput{Available: true, Metadata: models.PaperMetadata{PaperID: "p1", Title: "T"}}, nil)
	env.OnActivity("FetchHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.FetchHTMLOutput{Reason: "no mirror page for paper"}, nil)
	env.OnActivity("FetchDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.FetchDocumentOutput{Available: true, Path: "/tmp/p1.pdf"}, nil)
	env.OnActivity("ExtractStructureActivity", mock.Anything, activities.ExtractStructureInput{PDFPath: "/tmp/p1.pdf"}).
		Return(structureOutput(), nil)
	env.OnActivity("ExtractPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractPDFTextOutput{Available: true, Result: extract.PDFResult{Pages: []extract.Page{{Number: 1, Text: "Intro text."}}}}, nil)
	env.OnActivity("EvaluateScanActivity", mock.Anything, mock.Anything).
		Return(activities.EvaluateScanOutput{AttemptOCR: false}, nil)
	env.OnActivity("SelectAndResolveActivity", mock.Anything, mock.Anything).
		Return(selectOutput(ingest.SourceStructure), nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock-embed"}, nil)
	env.OnActivity("UpsertPaperBundleActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertPaperBundleOutput{ChunkCount: 1}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestManifestActivity", mock.Anything, mock.Anything).
		Return(activities.WriteIngestManifestOutput{Path: "/data/manifests/p1.json"}, nil)
	env.OnActivity("LogGenerationActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p1", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ready", out.Status)
	require.Equal(t, "structure-service", out.SectionSource)
	require.Equal(t, 1, out.ChunkCount)
	require.Equal(t, "/data/manifests/p1.json", out.ManifestPath)
}

func TestPaperIngestWorkflowStructureUnavailableDowngrades(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("FetchMetadataActivity", mock.Anything, mock.Anything).
		Return(activities.FetchMetadataOutput{Reason: "feed down"}, nil)
	env.OnActivity("FetchHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.FetchHTMLOutput{Available: true, HTML: "<html></html>"}, nil)
	env.OnActivity("FetchDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.FetchDocumentOutput{Available: true, Path: "/tmp/p2.pdf"}, nil)
	env.OnActivity("ExtractStructureActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractStructureOutput{Reason: "structure service error 503"}, nil)
	env.OnActivity("ExtractHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractHTMLOutput{Available: true, Result: extract.Result{
			Sections: []models.PaperSection{{ID: "S1", Title: "Intro", Paragraphs: []models.SectionParagraph{{ID: "S1-par-000", Text: "Mirror intro."}}}},
		}}, nil)
	env.OnActivity("ExtractPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractPDFTextOutput{Available: true, Result: extract.PDFResult{Pages: []extract.Page{{Number: 1, Text: "raw"}}}}, nil)
	env.OnActivity("EvaluateScanActivity", mock.Anything, mock.Anything).
		Return(activities.EvaluateScanOutput{AttemptOCR: false}, nil)
	env.OnActivity("SelectAndResolveActivity", mock.Anything, mock.MatchedBy(func(in activities.SelectAndResolveInput) bool {
		return !in.Sources.Structure.Available && in.Sources.Mirror.Available
	})).Return(selectOutput(ingest.SourceMirror), nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.3}}, ProviderName: "mock", Model: "mock-embed"}, nil)
	env.OnActivity("UpsertPaperBundleActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertPaperBundleOutput{ChunkCount: 1}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestManifestActivity", mock.Anything, mock.Anything).
		Return(activities.WriteIngestManifestOutput{}, nil)
	env.OnActivity("LogGenerationActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p2", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ready", out.Status)
	require.Equal(t, "html-mirror", out.SectionSource)
}

func TestPaperIngestWorkflowNoSectionsFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("FetchMetadataActivity", mock.Anything, mock.Anything).
		Return(activities.FetchMetadataOutput{}, nil)
	env.OnActivity("FetchHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.FetchHTMLOutput{}, nil)
	env.OnActivity("FetchDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.FetchDocumentOutput{Reason: "document source error 404"}, nil)
	env.OnActivity("SelectAndResolveActivity", mock.Anything, mock.Anything).
		Return(activities.SelectAndResolveOutput{}, errors.New("ingestion failed for paper p3 at select: no source produced any sections"))
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestManifestActivity", mock.Anything, mock.Anything).
		Return(activities.WriteIngestManifestOutput{}, nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p3", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "failed", out.Status)
	require.Contains(t, out.FailReason, "no source produced any sections")
}

func TestPaperIngestWorkflowOCRFailureIsNonFatal(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("FetchMetadataActivity", mock.Anything, mock.Anything).
		Return(activities.FetchMetadataOutput{}, nil)
	env.OnActivity("FetchHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.FetchHTMLOutput{}, nil)
	env.OnActivity("FetchDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.FetchDocumentOutput{Available: true, Path: "/tmp/p4.pdf"}, nil)
	env.OnActivity("ExtractStructureActivity", mock.Anything, mock.Anything).
		Return(structureOutput(), nil)
	env.OnActivity("ExtractPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractPDFTextOutput{Available: true, Result: extract.PDFResult{Pages: []extract.Page{{Number: 1, Text: ""}}}}, nil)
	env.OnActivity("EvaluateScanActivity", mock.Anything, mock.Anything).
		Return(activities.EvaluateScanOutput{AttemptOCR: true, OCRConfigured: true}, nil)
	env.OnActivity("RunOCRActivity", mock.Anything, mock.Anything).
		Return(activities.RunOCROutput{}, errors.New("ocr error 500: engine crashed"))
	env.OnActivity("SelectAndResolveActivity", mock.Anything, mock.MatchedBy(func(in activities.SelectAndResolveInput) bool {
		return !in.Sources.OCR.Available
	})).Return(selectOutput(ingest.SourceStructure), nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).
		Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.5}}, ProviderName: "mock", Model: "mock-embed"}, nil)
	env.OnActivity("UpsertPaperBundleActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertPaperBundleOutput{ChunkCount: 1}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestManifestActivity", mock.Anything, mock.Anything).
		Return(activities.WriteIngestManifestOutput{}, nil)
	env.OnActivity("LogGenerationActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p4", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ready", out.Status)
}

func TestPaperIngestWorkflowEmbedFailsOverOnQuota(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(PaperIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("FetchMetadataActivity", mock.Anything, mock.Anything).
		Return(activities.FetchMetadataOutput{}, nil)
	env.OnActivity("FetchHTMLActivity", mock.Anything, mock.Anything).
		Return(activities.FetchHTMLOutput{}, nil)
	env.OnActivity("FetchDocumentActivity", mock.Anything, mock.Anything).
		Return(activities.FetchDocumentOutput{Available: true, Path: "/tmp/p5.pdf"}, nil)
	env.OnActivity("ExtractStructureActivity", mock.Anything, mock.Anything).
		Return(structureOutput(), nil)
	env.OnActivity("ExtractPDFTextActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractPDFTextOutput{Available: true, Result: extract.PDFResult{Pages: []extract.Page{{Number: 1, Text: "raw"}}}}, nil)
	env.OnActivity("EvaluateScanActivity", mock.Anything, mock.Anything).
		Return(activities.EvaluateScanOutput{}, nil)
	env.OnActivity("SelectAndResolveActivity", mock.Anything, mock.Anything).
		Return(selectOutput(ingest.SourceStructure), nil)

	// Provider 0 is out of quota; provider 1 succeeds.
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool {
		return in.ProviderIndex == 0
	})).Return(activities.EmbedChunksOutput{}, errors.New("insufficient_quota"))
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool {
		return in.ProviderIndex == 1
	})).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.9}}, ProviderName: "ollama", Model: "nomic"}, nil)

	env.OnActivity("UpsertPaperBundleActivity", mock.Anything, mock.Anything).
		Return(activities.UpsertPaperBundleOutput{ChunkCount: 1}, nil)
	env.OnActivity("UpdatePaperStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("WriteIngestManifestActivity", mock.Anything, mock.Anything).
		Return(activities.WriteIngestManifestOutput{}, nil)
	env.OnActivity("LogGenerationActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(PaperIngestWorkflow, PaperIngestInput{PaperID: "p5", EmbedProviders: 2, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out IngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, "ready", out.Status)
}
