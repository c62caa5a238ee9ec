package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/guidopia/apiserver/internal/export"
	"github.com/guidopia/apiserver/internal/logging"
	"github.com/guidopia/apiserver/internal/services"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
	"go.uber.org/zap"
)

// "Recent" and "active" windows for the dashboard statistics.
const statsWindow = 30 * 24 * time.Hour

// AdminHandler serves the admin dashboard endpoints: student listing,
// statistics, class filters, and the roster PDF export.
type AdminHandler struct {
	users  *services.UserService
	logger *zap.Logger
}

func NewAdminHandler(users *services.UserService, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{users: users, logger: logger}
}

// AdminRouter registers admin routes; every route requires an
// authenticated admin session.
func AdminRouter(r chi.Router, handler *AdminHandler, session *Session) {
	r.Use(session.Require, session.RequireRole(types.RoleAdmin))
	r.Get("/students", handler.ListStudents)
	r.Get("/stats", handler.Stats)
	r.Get("/classes", handler.Classes)
	r.Get("/report.pdf", handler.StudentsPDF)
}

// StudentSummary is one row of the admin listing.
type StudentSummary struct {
	ID         int       `json:"id"`
	FullName   string    `json:"fullName"`
	Class      string    `json:"class"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	JoinedDate time.Time `json:"joinedDate"`
	IsActive   bool      `json:"isActive"`
}

// Pagination is the listing pagination envelope.
type Pagination struct {
	CurrentPage   int  `json:"currentPage"`
	TotalPages    int  `json:"totalPages"`
	TotalStudents int  `json:"totalStudents"`
	HasNext       bool `json:"hasNext"`
	HasPrev       bool `json:"hasPrev"`
}

// StudentListData is the payload of the student listing endpoint.
type StudentListData struct {
	Students   []StudentSummary `json:"students"`
	Pagination Pagination       `json:"pagination"`
}

func studentFilter(r *http.Request) store.StudentFilter {
	return store.StudentFilter{
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Class:  strings.TrimSpace(r.URL.Query().Get("class")),
	}
}

func (h *AdminHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := studentFilter(r)
	students, total, err := h.users.ListStudents(r.Context(), filter, offset, limit)
	if err != nil {
		h.logger.Error("student listing failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching students data")
		return
	}

	summaries := make([]StudentSummary, 0, len(students))
	for _, student := range students {
		summaries = append(summaries, StudentSummary{
			ID:         student.ID,
			FullName:   student.FullName,
			Class:      student.Class,
			Phone:      student.Phone,
			Email:      student.Email,
			JoinedDate: student.CreatedAt,
			IsActive:   student.IsActive,
		})
	}

	totalPages := (total + limit - 1) / limit
	writeSuccess(w, http.StatusOK, "", StudentListData{
		Students: summaries,
		Pagination: Pagination{
			CurrentPage:   page,
			TotalPages:    totalPages,
			TotalStudents: total,
			HasNext:       offset+len(students) < total,
			HasPrev:       page > 1,
		},
	})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.users.Stats(r.Context(), time.Now().Add(-statsWindow))
	if err != nil {
		h.logger.Error("student stats failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching student statistics")
		return
	}
	writeSuccess(w, http.StatusOK, "", stats)
}

func (h *AdminHandler) Classes(w http.ResponseWriter, r *http.Request) {
	classes, err := h.users.DistinctClasses(r.Context())
	if err != nil {
		h.logger.Error("class listing failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error fetching classes")
		return
	}
	if classes == nil {
		classes = []string{}
	}
	writeSuccess(w, http.StatusOK, "", classes)
}

// StudentsPDF streams a roster PDF of the filtered student set.
func (h *AdminHandler) StudentsPDF(w http.ResponseWriter, r *http.Request) {
	filter := studentFilter(r)
	students, total, err := h.users.ListStudents(r.Context(), filter, 0, maxLimit)
	if err != nil {
		h.logger.Error("roster export failed", zap.String("error", logging.RedactError(err)))
		writeError(w, http.StatusInternalServerError, "Error generating PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="students-report.pdf"`)
	if err := export.StudentsPDF(w, students, filter, total); err != nil {
		// Headers are already out; log and drop the connection.
		h.logger.Error("roster pdf render failed", zap.String("error", logging.RedactError(err)))
	}
}
