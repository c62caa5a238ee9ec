package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guidopia/apiserver/internal/export"
	"github.com/guidopia/apiserver/internal/llm"
	"github.com/guidopia/apiserver/internal/report"
	"github.com/guidopia/apiserver/types"
	"go.uber.org/zap"
)

// ReportGeneratedChannel is the broker channel report events go to.
const ReportGeneratedChannel = "report.generated"

// Swappable in tests to avoid rendering real PDFs.
var renderReportPDF = export.ReportPDF

const reportSystemPrompt = `You are a career counselor for Indian school students. ` +
	`Based on the questionnaire answers, write a structured career-assessment report ` +
	`with markdown section headings: Overview, Career Matches, Recommended Streams, ` +
	`Strengths, Next Steps.`

// ReportRepository defines persistence operations for reports.
type ReportRepository interface {
	Create(ctx context.Context, report types.Report) (types.Report, error)
	GetByID(ctx context.Context, id string) (types.Report, error)
	LatestByUser(ctx context.Context, userID int) (types.Report, error)
	SetPDFKey(ctx context.Context, id, pdfKey string) error
	Delete(ctx context.Context, id string) error
}

// Completer is the LLM call the report pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (llm.Completion, error)
}

// Publisher emits broker events; satisfied by *mq.MQ.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ObjectStore archives exported PDFs; satisfied by *storage.Storage.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// QuestionAnswer is one questionnaire entry from the student.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ReportService runs the report pipeline: prompt the LLM, parse the
// free-form text into sections, persist, archive a PDF, and announce
// the result on the broker. Archive and broker failures are logged but
// do not fail generation; the report itself is already durable.
type ReportService struct {
	repo      ReportRepository
	completer Completer
	publisher Publisher
	objects   ObjectStore
	logger    *zap.Logger
}

func NewReportService(repo ReportRepository, completer Completer, publisher Publisher, objects ObjectStore, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:      repo,
		completer: completer,
		publisher: publisher,
		objects:   objects,
		logger:    logger,
	}
}

// Generate produces and persists a career report for the user.
func (s *ReportService) Generate(ctx context.Context, user types.User, answers []QuestionAnswer) (types.Report, error) {
	completion, err := s.completer.Complete(ctx, buildMessages(user, answers))
	if err != nil {
		return types.Report{}, err
	}

	sections := report.Parse(completion.Content)

	created, err := s.repo.Create(ctx, types.Report{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Model:      completion.Model,
		RawText:    completion.Content,
		Sections:   sections,
		TokensUsed: completion.TokensUsed,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		return types.Report{}, err
	}

	s.archivePDF(ctx, user, &created)
	s.announce(ctx, created)

	return created, nil
}

func (s *ReportService) GetByID(ctx context.Context, id string) (types.Report, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ReportService) LatestByUser(ctx context.Context, userID int) (types.Report, error) {
	return s.repo.LatestByUser(ctx, userID)
}

// Delete removes the report and its archived PDF. The PDF is removed
// first; an orphaned object is preferable to a report row pointing at
// a deleted one, and a failed object delete only logs.
func (s *ReportService) Delete(ctx context.Context, rep types.Report) error {
	if s.objects != nil && rep.PDFKey != "" {
		if err := s.objects.Delete(ctx, rep.PDFKey); err != nil {
			s.logger.Warn("report pdf delete failed",
				zap.String("report_id", rep.ID),
				zap.String("pdf_key", rep.PDFKey),
				zap.Error(err))
		}
	}
	return s.repo.Delete(ctx, rep.ID)
}

// OpenPDF returns a reader over the archived PDF for the report.
func (s *ReportService) OpenPDF(ctx context.Context, rep types.Report) (io.ReadCloser, error) {
	if s.objects == nil || rep.PDFKey == "" {
		return nil, fmt.Errorf("report %s has no archived pdf", rep.ID)
	}
	return s.objects.Get(ctx, rep.PDFKey)
}

func (s *ReportService) archivePDF(ctx context.Context, user types.User, rep *types.Report) {
	if s.objects == nil {
		return
	}

	var buf bytes.Buffer
	if err := renderReportPDF(&buf, user, *rep); err != nil {
		s.logger.Warn("report pdf render failed", zap.String("report_id", rep.ID), zap.Error(err))
		return
	}

	key := fmt.Sprintf("reports/%d/%s.pdf", user.ID, rep.ID)
	if err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/pdf"); err != nil {
		s.logger.Warn("report pdf upload failed", zap.String("report_id", rep.ID), zap.Error(err))
		return
	}
	if err := s.repo.SetPDFKey(ctx, rep.ID, key); err != nil {
		s.logger.Warn("report pdf key update failed", zap.String("report_id", rep.ID), zap.Error(err))
		return
	}
	rep.PDFKey = key
}

func (s *ReportService) announce(ctx context.Context, rep types.Report) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"reportId":  rep.ID,
		"userId":    rep.UserID,
		"createdAt": rep.CreatedAt,
	})
	if err != nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, ReportGeneratedChannel, payload, map[string]string{
		"event": "report.generated",
	}); err != nil {
		s.logger.Warn("report event publish failed", zap.String("report_id", rep.ID), zap.Error(err))
	}
}

func buildMessages(user types.User, answers []QuestionAnswer) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Student: %s", user.FullName)
	if user.Class != "" {
		fmt.Fprintf(&sb, " (class %s)", user.Class)
	}
	sb.WriteString("\n\nQuestionnaire answers:\n")
	for i, qa := range answers {
		fmt.Fprintf(&sb, "%d. %s\n   Answer: %s\n", i+1, qa.Question, qa.Answer)
	}

	return []llm.Message{
		{Role: "system", Content: reportSystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
