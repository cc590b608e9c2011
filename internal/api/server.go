package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"paperlens/internal/answer"
	"paperlens/internal/config"
	"paperlens/internal/evidence"
	"paperlens/internal/providers"
	"paperlens/internal/retrieval"
	"paperlens/internal/sources"
	"paperlens/internal/storage"
	"paperlens/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg       config.Config
	db        *storage.DB
	paperRepo *storage.PaperRepo
	chunkRepo *storage.ChunkRepo
	figRepo   *storage.FigureRepo
	refRepo   *storage.ReferenceRepo
	auditRepo *storage.GenerationAuditRepo
	builder   *evidence.Builder
	providers *providers.Manager
	temporal  tclient.Client
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	figRepo := storage.NewFigureRepo(db)
	refRepo := storage.NewReferenceRepo(db)
	retriever := retrieval.NewRetriever(db.Pool)
	external := sources.NewMetadataClient(cfg.MetadataBaseURL, time.Duration(cfg.MetadataTimeoutSecs)*time.Second)
	return &Server{
		cfg:       cfg,
		db:        db,
		paperRepo: storage.NewPaperRepo(db),
		chunkRepo: storage.NewChunkRepo(db),
		figRepo:   figRepo,
		refRepo:   refRepo,
		auditRepo: storage.NewGenerationAuditRepo(db),
		builder:   evidence.NewBuilder(retriever, figRepo, refRepo, external),
		providers: pm,
		temporal:  tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/papers", s.handlePapers)
	mux.HandleFunc("/papers/", s.handlePapersScoped)
	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/summarize", s.handleSummarize)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	papers, err := s.paperRepo.ListPapers(r.Context(), 0)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"papers": papers})
}

func (s *Server) handlePapersScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/papers/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	paperID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleGetPaper(w, r, paperID)
		return
	}
	if len(parts) == 2 && parts[1] == "ingest" {
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleIngest(w, r, paperID)
		return
	}
	if len(parts) == 2 && parts[1] == "progress" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleProgress(w, r, paperID)
		return
	}
	if len(parts) == 2 && parts[1] == "figures" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		figures, err := s.figRepo.ListFiguresByPaper(r.Context(), paperID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"figures": figures})
		return
	}
	if len(parts) == 2 && parts[1] == "references" {
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		refs, err := s.refRepo.ListReferencesByPaper(r.Context(), paperID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"references": refs})
		return
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleGetPaper(w http.ResponseWriter, r *http.Request, paperID string) {
	rec, err := s.paperRepo.GetPaperByID(r.Context(), paperID)
	if err != nil {
		if errors.Is(err, storage.ErrPaperNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	chunks, err := s.chunkRepo.ListChunksByPaper(r.Context(), paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	figures, err := s.figRepo.ListFiguresByPaper(r.Context(), paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	refs, err := s.refRepo.ListReferencesByPaper(r.Context(), paperID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paper":           rec,
		"chunk_count":     len(chunks),
		"figure_count":    len(figures),
		"reference_count": len(refs),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, paperID string) {
	var req struct {
		ForceOCR bool `json:"force_ocr"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
			return
		}
	}
	wfID := "ingest-" + sanitizeWorkflowID(paperID)
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       wfID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.PaperIngestWorkflow, workflows.PaperIngestInput{
		PaperID:         paperID,
		ForceOCR:        req.ForceOCR,
		EmbedProviders:  s.providers.EmbedCount(),
		CooldownSeconds: s.cfg.CooldownSecs,
	})
	if err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": we.GetRunID()})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, paperID string) {
	var prog workflows.IngestProgress
	resp, err := s.temporal.QueryWorkflow(r.Context(), "ingest-"+sanitizeWorkflowID(paperID), "", workflows.QueryGetIngestProgress)
	if err != nil {
		// No live workflow to query; fall back to the stored lifecycle row.
		rec, pErr := s.paperRepo.GetPaperByID(r.Context(), paperID)
		if pErr != nil {
			if errors.Is(pErr, storage.ErrPaperNotFound) {
				writeErr(w, http.StatusNotFound, pErr)
				return
			}
			writeErr(w, http.StatusInternalServerError, pErr)
			return
		}
		writeJSON(w, http.StatusOK, workflows.IngestProgress{
			PaperID:    paperID,
			Status:     rec.Status,
			FailReason: rec.FailReason,
		})
		return
	}
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

type groundedRequest struct {
	PaperID   string                `json:"paper_id"`
	Question  string                `json:"question"`
	Selection string                `json:"selection,omitempty"`
	Persona   answer.PersonaOptions `json:"persona"`
	TopK      int                   `json:"top_k"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req groundedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	req.Question = strings.TrimSpace(req.Question)
	if req.PaperID == "" || req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_id and question are required"))
		return
	}

	bundle, embedInfo, ok := s.buildBundle(w, r, req, "ask")
	if !ok {
		return
	}

	system, user, ctxLines := answer.BuildAnswerPrompt(bundle, req.Question, req.Persona)
	text, llmInfo, err := s.generate(r.Context(), providers.GenerateRequest{
		Operation:  "ask",
		System:     system,
		Prompt:     user,
		Context:    ctxLines,
		JSONSchema: answer.AnswerSchemaJSON,
		SchemaName: answer.AnswerSchemaName,
	}, req.PaperID)
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("generation failed: %w", err))
		return
	}
	result, err := answer.ParseAnswer(text, bundle)
	if err != nil {
		s.logGeneration(r.Context(), "ask", req.PaperID, llmInfo, "schema_violation", "schema")
		writeErr(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id":           req.PaperID,
		"answer":             result.Answer,
		"no_direct_evidence": result.NoDirectEvidence || bundle.NoDirectEvidence,
		"citations":          result.Citations,
		"figures":            bundle.Figures,
		"external_citations": bundle.Citations,
		"embed_provider":     embedInfo.Name,
		"embed_model":        embedInfo.Model,
		"llm_provider":       llmInfo.Name,
		"llm_model":          llmInfo.Model,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req groundedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.PaperID = strings.TrimSpace(req.PaperID)
	if req.PaperID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("paper_id is required"))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		req.Question = "Summarize the key contributions, methods, and findings of this paper."
	}

	bundle, embedInfo, ok := s.buildBundle(w, r, req, "summarize")
	if !ok {
		return
	}

	system, user, ctxLines := answer.BuildSummaryPrompt(bundle, req.Persona)
	text, llmInfo, err := s.generate(r.Context(), providers.GenerateRequest{
		Operation:  "summarize",
		System:     system,
		Prompt:     user,
		Context:    ctxLines,
		JSONSchema: answer.SummarySchemaJSON,
		SchemaName: answer.SummarySchemaName,
	}, req.PaperID)
	if err != nil {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("generation failed: %w", err))
		return
	}
	result, err := answer.ParseSummary(text, bundle)
	if err != nil {
		s.logGeneration(r.Context(), "summarize", req.PaperID, llmInfo, "schema_violation", "schema")
		writeErr(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"paper_id":           req.PaperID,
		"summary":            result.Summary,
		"sections":           result.Sections,
		"figures":            bundle.Figures,
		"external_citations": bundle.Citations,
		"embed_provider":     embedInfo.Name,
		"embed_model":        embedInfo.Model,
		"llm_provider":       llmInfo.Name,
		"llm_model":          llmInfo.Model,
	})
}

// buildBundle verifies the paper is queryable, embeds the query along the
// preferred provider order, and assembles the evidence bundle. On failure it
// writes the response itself and returns ok=false.
func (s *Server) buildBundle(w http.ResponseWriter, r *http.Request, req groundedRequest, operation string) (evidence.Bundle, providers.ProviderInfo, bool) {
	rec, err := s.paperRepo.GetPaperByID(r.Context(), req.PaperID)
	if err != nil {
		if errors.Is(err, storage.ErrPaperNotFound) {
			writeErr(w, http.StatusNotFound, err)
			return evidence.Bundle{}, providers.ProviderInfo{}, false
		}
		writeErr(w, http.StatusInternalServerError, err)
		return evidence.Bundle{}, providers.ProviderInfo{}, false
	}
	if rec.Status != storage.PaperStatusReady {
		writeErr(w, http.StatusConflict, fmt.Errorf("paper %s is not ready (status %s)", req.PaperID, rec.Status))
		return evidence.Bundle{}, providers.ProviderInfo{}, false
	}

	queryText := req.Question
	if sel := strings.TrimSpace(req.Selection); sel != "" {
		queryText = strings.TrimSpace(queryText + "\n" + sel)
	}
	var (
		vectors [][]float32
		info    providers.ProviderInfo
		embErr  error
	)
	for _, idx := range s.providers.PreferredEmbedOrder() {
		p, _ := s.providers.EmbedProviderByIndex(idx)
		vectors, info, embErr = p.Embed(r.Context(), providers.EmbedRequest{
			Operation: operation + "_query_embed",
			Inputs:    []string{queryText},
			Dimension: s.cfg.EmbedDim,
		})
		if embErr == nil && len(vectors) == 1 {
			break
		}
	}
	if embErr != nil || len(vectors) != 1 {
		writeErr(w, http.StatusBadGateway, fmt.Errorf("embedding providers unavailable"))
		return evidence.Bundle{}, providers.ProviderInfo{}, false
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.RetrievalTopK
	}
	bundle, err := s.builder.Build(r.Context(), req.PaperID, req.Question, req.Selection, vectors[0], evidence.Options{
		TopK:         topK,
		Alpha:        s.cfg.RetrievalAlpha,
		PageWindow:   s.cfg.PageWindow,
		CitationTopN: s.cfg.CitationTopN,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return evidence.Bundle{}, providers.ProviderInfo{}, false
	}
	return bundle, info, true
}

// generate walks the preferred LLM order and audits every attempt. A reply
// that later fails schema validation is never retried here; structural
// violations are a provider contract problem, not a transient fault.
func (s *Server) generate(ctx context.Context, req providers.GenerateRequest, paperID string) (string, providers.ProviderInfo, error) {
	var (
		resp providers.GenerateResponse
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredLLMOrder() {
		p, ref := s.providers.LLMProviderByIndex(idx)
		resp, info, err = p.Generate(ctx, req)
		if info.Name == "" {
			info.Name = ref.Name
		}
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			s.logGeneration(ctx, req.Operation, paperID, info, "ok", "")
			return resp.Text, info, nil
		}
		s.logGeneration(ctx, req.Operation, paperID, info, "failed", string(providers.ClassifyError(err)))
	}
	if err == nil {
		err = fmt.Errorf("all providers returned empty replies")
	}
	return "", info, err
}

func (s *Server) logGeneration(ctx context.Context, operation, paperID string, info providers.ProviderInfo, status, errType string) {
	_ = s.auditRepo.Insert(ctx, storage.GenerationCallRecord{
		Operation:    operation,
		PaperID:      paperID,
		ProviderName: info.Name,
		Model:        info.Model,
		RequestID:    uuid.NewString(),
		Status:       status,
		ErrorType:    errType,
	})
}

func sanitizeWorkflowID(paperID string) string {
	return strings.ReplaceAll(paperID, "/", "-")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
