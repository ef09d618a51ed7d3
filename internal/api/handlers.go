package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aliendevit/minuteone/internal/apperr"
	"github.com/aliendevit/minuteone/internal/chips"
	"github.com/aliendevit/minuteone/internal/compose"
	"github.com/aliendevit/minuteone/internal/metrics"
	"github.com/aliendevit/minuteone/internal/model"
	"github.com/aliendevit/minuteone/internal/planpack"
	"github.com/aliendevit/minuteone/internal/store"
	"github.com/aliendevit/minuteone/internal/transcript"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"fts":    s.store.FTSEnabled(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), s.cfg.Store.DBPath)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

// --- facts ---

type ingestRequest struct {
	Facts []model.Fact `json:"facts"`
}

type ingestResponse struct {
	Written  int `json:"written"`
	Reopened int `json:"reopened"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed request body"))
		return
	}
	if len(req.Facts) == 0 {
		s.writeError(w, apperr.Validation("EMPTY_BATCH", "at least one fact is required"))
		return
	}

	written, err := s.store.IngestFacts(r.Context(), req.Facts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.FactsIngested.Add(float64(written))

	reopened, err := s.manager.Escalate(r.Context(), req.Facts)
	if err != nil {
		s.log.Warn("escalation after ingest failed", zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, ingestResponse{Written: written, Reopened: reopened})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	window := s.cfg.Store.ContextWindow
	if h := r.URL.Query().Get("window"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			s.writeError(w, apperr.Validation("BAD_WINDOW", "window must be a positive number of hours"))
			return
		}
		window = time.Duration(n) * time.Hour
	}
	grouped, err := s.store.Context(r.Context(), window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, grouped)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, apperr.Validation("MISSING_QUERY", "q parameter is required"))
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	facts, err := s.store.QueryFacts(r.Context(), store.QueryParams{Text: q, Limit: limit})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if facts == nil {
		facts = []model.Fact{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"facts": facts})
}

func (s *Server) handleDelta(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, err := s.deltas.Compute(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

// --- extract ---

type extractRequest struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"` // transcriber confidence
	BuildChips bool    `json:"build_chips,omitempty"`
	SessionID  string  `json:"session_id,omitempty"` // attribute created chips to a session
}

type extractResponse struct {
	Visit    model.Visit                `json:"visit"`
	Scores   map[string]model.SlotScore `json:"slot_scores"`
	SpanRefs map[string][]string        `json:"span_refs,omitempty"`
	Spans    []transcript.Span          `json:"spans"`
	Chips    []model.Chip               `json:"chips,omitempty"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed request body"))
		return
	}
	if req.Text == "" {
		s.writeError(w, apperr.Validation("MISSING_TEXT", "text is required"))
		return
	}

	opts := transcript.DefaultOptions()
	if req.Confidence > 0 {
		opts.Confidence = req.Confidence
	}
	spans := transcript.Split(req.Text, opts)

	res, err := s.extractor.Extract(r.Context(), spans)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := extractResponse{Visit: res.Visit, Scores: res.Scores, SpanRefs: res.SpanRefs, Spans: spans}
	if req.BuildChips {
		for slot, sig := range res.Scores {
			proposed := proposedFor(slot, res.Visit)
			if proposed == "" {
				continue
			}
			chip, err := s.manager.Build(r.Context(), chips.BuildParams{
				Slot:     slot,
				Type:     model.ChipValue,
				Proposed: proposed,
				Signals:  sig,
				Risk:     riskFor(slot),
				Evidence: res.SpanRefs[slot],
			})
			if err != nil {
				s.writeError(w, err)
				return
			}
			resp.Chips = append(resp.Chips, *chip)
		}
		if req.SessionID != "" && len(resp.Chips) > 0 {
			counts := map[model.Band]int{}
			for _, c := range resp.Chips {
				counts[c.Band]++
			}
			for band, n := range counts {
				if err := s.store.AddChipCount(r.Context(), req.SessionID, band, n); err != nil {
					s.log.Warn("session chip count", zap.String("session_id", req.SessionID), zap.Error(err))
					break
				}
			}
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func proposedFor(slot string, v model.Visit) string {
	switch slot {
	case "chief_complaint":
		return v.ChiefComplaint
	case "hpi_onset":
		return v.HPI.Onset
	case "hpi_quality":
		return v.HPI.Quality
	case "exam_cv":
		return v.ExamBits["cv"]
	case "exam_lungs":
		return v.ExamBits["lungs"]
	}
	return ""
}

func riskFor(slot string) model.Risk {
	switch slot {
	case "hpi_red_flags", "risk_pregnancy":
		return model.RiskHigh
	default:
		return model.RiskLow
	}
}

// --- chips ---

func (s *Server) handleListChips(w http.ResponseWriter, r *http.Request) {
	f := store.ChipFilter{
		Band:  model.Band(r.URL.Query().Get("band")),
		State: model.ChipState(r.URL.Query().Get("state")),
	}
	list, err := s.store.ListChips(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Chip{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"chips": list})
}

func (s *Server) handleGetChip(w http.ResponseWriter, r *http.Request) {
	chip, err := s.store.GetChip(r.Context(), chi.URLParam(r, "chipID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chip)
}

type resolveRequest struct {
	ChipID       string `json:"chip_id"`
	Action       string `json:"action"`
	Value        string `json:"value,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Acknowledged bool   `json:"acknowledged,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed request body"))
		return
	}
	if req.ChipID == "" || req.Action == "" {
		s.writeError(w, apperr.Validation("MISSING_FIELD", "chip_id and action are required"))
		return
	}
	chip, err := s.manager.Resolve(r.Context(), chips.ResolveRequest{
		ChipID:       req.ChipID,
		Action:       model.ChipAction(req.Action),
		Value:        req.Value,
		Reason:       req.Reason,
		Acknowledged: req.Acknowledged,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chip)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	trail, err := s.manager.AuditTrail(r.Context(), chi.URLParam(r, "chipID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if trail == nil {
		trail = []model.AuditRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"audit": trail})
}

// handleEvidence returns the cited facts with their deltas. Viewing evidence
// is how a client satisfies the acknowledgement requirement for band C and D
// accepts.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	chip, err := s.store.GetChip(r.Context(), chi.URLParam(r, "chipID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	facts, err := s.store.FactsByID(r.Context(), chip.Evidence)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]compose.EvidenceItem, 0, len(facts))
	for _, f := range facts {
		d, err := s.deltas.Compute(r.Context(), f.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		items = append(items, compose.EvidenceItem{Fact: f, Delta: d})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"evidence": items})
}

// --- plan packs ---

func (s *Server) handlePlanPack(w http.ResponseWriter, r *http.Request) {
	pathway := chi.URLParam(r, "pathway")
	pack, ok := s.packs[pathway]
	if !ok {
		s.writeError(w, apperr.NotFound("plan pack", pathway))
		return
	}

	var visit model.Visit
	if err := json.NewDecoder(r.Body).Decode(&visit); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed visit"))
		return
	}
	if err := visit.Validate(); err != nil {
		s.writeError(w, apperr.Validation("INVALID_VISIT", err.Error()))
		return
	}

	res := planpack.Evaluate(r.Context(), pack, s.guards, visit)

	// Each blocked guard becomes a band-D guard chip.
	var created []model.Chip
	for _, flag := range res.GuardFlags {
		if !flag.Blocked() {
			continue
		}
		chip, err := s.manager.Build(r.Context(), chips.BuildParams{
			Slot:      "guard_" + flag.Guard,
			Type:      model.ChipGuard,
			Label:     flag.Guard + ": " + flag.ReasonCode,
			Risk:      model.RiskHigh,
			Guards:    []model.GuardResult{flag},
			GuardName: flag.Guard,
		})
		if err != nil {
			s.writeError(w, err)
			return
		}
		created = append(created, *chip)
	}

	if err := s.store.KVSet(r.Context(), "last_pathway", pathway); err != nil {
		s.log.Warn("cache last pathway", zap.Error(err))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pathway":     pathway,
		"guard_flags": res.GuardFlags,
		"suggestions": res.Suggestions,
		"chips":       created,
	})
}

// --- compose ---

type composeRequest struct {
	Visit       model.Visit `json:"visit"`
	EvidenceIDs []string    `json:"evidence_ids,omitempty"`
	Language    string      `json:"language,omitempty"`
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed request body"))
		return
	}
	if err := req.Visit.Validate(); err != nil {
		s.writeError(w, apperr.Validation("INVALID_VISIT", err.Error()))
		return
	}

	facts, err := s.store.FactsByID(r.Context(), req.EvidenceIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	items := make([]compose.EvidenceItem, 0, len(facts))
	for _, f := range facts {
		d, err := s.deltas.Compute(r.Context(), f.Name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		items = append(items, compose.EvidenceItem{Fact: f, Delta: d})
	}

	lang := req.Language
	if lang == "" {
		lang = req.Visit.LanguagePref
	}

	var artifact compose.Artifact
	switch kind {
	case "note":
		artifact = compose.Note(req.Visit, items)
	case "handoff":
		artifact = compose.Handoff(req.Visit, items)
	case "discharge":
		artifact = compose.Discharge(req.Visit, items, lang)
	default:
		s.writeError(w, apperr.Validation("BAD_KIND", "kind must be note, handoff, or discharge"))
		return
	}
	s.writeJSON(w, http.StatusOK, artifact)
}

// --- sessions ---

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := s.store.StartSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.store.SessionSnapshot(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.SessionSnapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type sessionEvent struct {
	Keystrokes int    `json:"keystrokes,omitempty"`
	Timer      string `json:"timer,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms,omitempty"`
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var ev sessionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.writeError(w, apperr.Validation("BAD_JSON", "malformed request body"))
		return
	}
	if ev.Keystrokes > 0 {
		if err := s.store.AddKeystrokes(r.Context(), id, ev.Keystrokes); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if ev.Timer != "" && ev.ElapsedMS > 0 {
		if err := s.store.AddTimer(r.Context(), id, ev.Timer, time.Duration(ev.ElapsedMS)*time.Millisecond); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.store.TouchSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- responses ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	body := map[string]interface{}{"error": err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body["code"] = ae.Code
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
	}
	s.writeJSON(w, status, body)
}
