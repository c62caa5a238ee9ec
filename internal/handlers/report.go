package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/guidopia/apiserver/internal/export"
	"github.com/guidopia/apiserver/internal/llm"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
	"go.uber.org/zap"
)

const maxQuestionnaireAnswers = 50

// ReportHandler serves career-report generation and retrieval.
type ReportHandler struct {
	reports *services.ReportService
	users   *services.UserService
	health  *llm.HealthMonitor
	logger  *zap.Logger
}

func NewReportHandler(reports *services.ReportService, users *services.UserService, health *llm.HealthMonitor, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		reports: reports,
		users:   users,
		health:  health,
		logger:  logger,
	}
}

// ReportRouter registers report routes; all require authentication.
// The limiter guards the LLM-backed generation endpoint.
func ReportRouter(r chi.Router, handler *ReportHandler, session *Session, generateLimit func(http.Handler) http.Handler) {
	r.Use(session.Require)
	r.With(generateLimit).Post("/", handler.Generate)
	r.Get("/latest", handler.Latest)
	r.Get("/{reportID}/pdf", handler.PDF)
	r.Delete("/{reportID}", handler.Delete)
}

type GenerateReportRequest struct {
	Answers []services.QuestionAnswer `json:"answers"`
}

// Generate runs the questionnaire answers through the LLM and returns
// the parsed report.
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "Questionnaire answers are required")
		return
	}
	if len(req.Answers) > maxQuestionnaireAnswers {
		writeError(w, http.StatusBadRequest, "Too many questionnaire answers")
		return
	}
	for _, qa := range req.Answers {
		if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
			writeError(w, http.StatusBadRequest, "Each answer must include a question and an answer")
			return
		}
	}

	if h.health != nil && !h.health.Healthy(r.Context()) {
		writeError(w, http.StatusServiceUnavailable, "AI service is currently experiencing issues. Please try again later.")
		return
	}

	report, err := h.reports.Generate(r.Context(), user, req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "Too many report requests. Please try again later.")
		case errors.Is(err, llm.ErrUnauthorized), errors.Is(err, llm.ErrNotConfigured), errors.Is(err, llm.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "AI service is currently experiencing issues. Please try again later.")
		default:
			h.logger.Error("report generation failed", zap.String("error", logging.RedactError(err)))
			writeError(w, http.StatusInternalServerError, "Failed to generate report. Please try again.")
		}
		return
	}

	writeSuccess(w, http.StatusCreated, "Report generated successfully", map[string]any{"report": report})
}

// Latest returns the caller's most recent report.
func (h *ReportHandler) Latest(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	report, err := h.reports.LatestByUser(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No report generated yet")
			return
		}
		h.logger.Error("report lookup failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching report")
		return
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{"report": report})
}

// Delete removes a report along with its archived PDF.
func (h *ReportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	reportID := chi.URLParam(r, "reportID")
	report, err := h.reports.GetByID(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Error("report lookup failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching report")
		return
	}

	if report.UserID != user.ID && user.Role != types.RoleAdmin {
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	if err := h.reports.Delete(r.Context(), report); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Error("report delete failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error deleting report")
		return
	}

	writeSuccess(w, http.StatusOK, "Report deleted successfully", nil)
}

// PDF streams the report PDF: the archived copy when one exists,
// otherwise a fresh rendering.
func (h *ReportHandler) PDF(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required.")
		return
	}

	reportID := chi.URLParam(r, "reportID")
	report, err := h.reports.GetByID(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Report not found")
			return
		}
		h.logger.Error("report lookup failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching report")
		return
	}

	// Students may only read their own reports.
	if report.UserID != user.ID && user.Role != types.RoleAdmin {
		writeError(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="career-report.pdf"`)

	if report.PDFKey != "" {
		archived, err := h.reports.OpenPDF(r.Context(), report)
		if err == nil {
			defer archived.Close()
			if _, err := io.Copy(w, archived); err != nil {
				h.logger.Warn("report pdf stream failed", zap.String("error", logging.RedactError(err)))
			}
			return
		}
		h.logger.Warn("archived pdf unavailable, re-rendering", zap.String("error", logging.RedactError(err)))
	}

	owner, err := h.users.GetByID(r.Context(), report.UserID)
	if err != nil {
		owner = user
	}
	if err := export.ReportPDF(w, owner, report); err != nil {
		h.logger.Error("report pdf render failed", zap.String("error", logging.RedactError(err)))
	}
}
