package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.FetchMetadataActivity)
	w.RegisterActivity(a.FetchHTMLActivity)
	w.RegisterActivity(a.FetchDocumentActivity)
	w.RegisterActivity(a.ExtractStructureActivity)
	w.RegisterActivity(a.ExtractHTMLActivity)
	w.RegisterActivity(a.ExtractPDFTextActivity)
	w.RegisterActivity(a.EvaluateScanActivity)
	w.RegisterActivity(a.RunOCRActivity)
	w.RegisterActivity(a.SelectAndResolveActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertPaperBundleActivity)
	w.RegisterActivity(a.UpdatePaperStatusActivity)
	w.RegisterActivity(a.WriteIngestManifestActivity)
	w.RegisterActivity(a.LogGenerationActivity)
}
