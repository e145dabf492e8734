package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Okan-wqm/avinor-sub001/internal/models"
	appErrors "github.com/Okan-wqm/avinor-sub001/pkg/errors"
	"github.com/Okan-wqm/avinor-sub001/pkg/export"
)

// RecordFormat selects the export encoding.
type RecordFormat string

const (
	RecordFormatCSV RecordFormat = "csv"
	RecordFormatPDF RecordFormat = "pdf"
)

type recordProgramStore interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

type recordUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type recordLessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

// RecordService assembles the exportable training record of an enrollment:
// a summary of totals followed by the attempt ledger in chronological order.
type RecordService struct {
	enrollments  progressEnrollmentStore
	programs     recordProgramStore
	users        recordUserStore
	lessons      recordLessonStore
	completions  enrollmentCompletionStore
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	organisation string
	logger       *zap.Logger
}

// NewRecordService constructs the service.
func NewRecordService(
	enrollments progressEnrollmentStore,
	programs recordProgramStore,
	users recordUserStore,
	lessons recordLessonStore,
	completions enrollmentCompletionStore,
	organisation string,
	logger *zap.Logger,
) *RecordService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{
		enrollments:  enrollments,
		programs:     programs,
		users:        users,
		lessons:      lessons,
		completions:  completions,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		organisation: organisation,
		logger:       logger,
	}
}

// Export renders the training record in the requested format and returns the
// bytes with their content type and a suggested file name.
func (s *RecordService) Export(ctx context.Context, enrollmentID string, format RecordFormat) ([]byte, string, string, error) {
	dataset, err := s.buildDataset(ctx, enrollmentID)
	if err != nil {
		return nil, "", "", err
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case RecordFormatPDF:
		payload, err := s.pdf.Render(*dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf record")
		}
		return payload, "application/pdf", fmt.Sprintf("training-record-%s-%s.pdf", enrollmentID, stamp), nil
	case RecordFormatCSV, "":
		payload, err := s.csv.Render(*dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv record")
		}
		return payload, "text/csv", fmt.Sprintf("training-record-%s-%s.csv", enrollmentID, stamp), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
}

func (s *RecordService) buildDataset(ctx context.Context, enrollmentID string) (*export.Dataset, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	student, err := s.users.FindByID(ctx, enrollment.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	program, err := s.programs.FindByID(ctx, enrollment.ProgramID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	history, err := s.completions.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attempt history")
	}

	dataset := &export.Dataset{
		Title: fmt.Sprintf("%s - Training Record", s.organisation),
		Summary: []export.Field{
			{Label: "Student", Value: student.FullName},
			{Label: "Program", Value: fmt.Sprintf("%s (%s)", program.Name, program.Code)},
			{Label: "Status", Value: string(enrollment.Status)},
			{Label: "Enrolled", Value: enrollment.EnrolledAt.Format("2006-01-02")},
			{Label: "Total Flight Hours", Value: formatHours(enrollment.Total)},
			{Label: "Dual / Solo / PIC", Value: fmt.Sprintf("%s / %s / %s", formatHours(enrollment.Dual), formatHours(enrollment.Solo), formatHours(enrollment.PIC))},
			{Label: "Simulator / Ground", Value: fmt.Sprintf("%s / %s", formatHours(enrollment.Simulator), formatHours(enrollment.Ground))},
			{Label: "Landings", Value: strconv.Itoa(enrollment.LandingsTotal)},
			{Label: "Lessons Completed", Value: fmt.Sprintf("%d of %d", enrollment.LessonsCompleted, enrollment.LessonsTotal)},
		},
		Headers: []string{"Date", "Lesson", "Attempt", "Status", "Result", "Grade", "Flight", "Ground", "Sim", "Landings", "Instructor Signed"},
	}

	lessonNames := make(map[string]string)
	for i := range history {
		c := &history[i]
		name, ok := lessonNames[c.LessonID]
		if !ok {
			if lesson, err := s.lessons.FindByID(ctx, c.LessonID); err == nil {
				name = lesson.Code
			} else {
				name = c.LessonID
			}
			lessonNames[c.LessonID] = name
		}

		date := ""
		if c.CompletedAt != nil {
			date = c.CompletedAt.Format("2006-01-02")
		} else if c.ScheduledAt != nil {
			date = c.ScheduledAt.Format("2006-01-02")
		}
		result := ""
		if c.Result != nil {
			result = string(*c.Result)
		}
		grade := ""
		if c.OverallGrade != nil {
			grade = strconv.FormatFloat(*c.OverallGrade, 'f', 1, 64)
		}
		signed := "no"
		if c.InstructorSigned {
			signed = "yes"
		}
		dataset.Rows = append(dataset.Rows, []string{
			date,
			name,
			strconv.Itoa(c.AttemptNumber),
			string(c.Status),
			result,
			grade,
			formatHours(c.Flight),
			formatHours(c.Ground),
			formatHours(c.Simulator),
			strconv.Itoa(c.LandingsCount),
			signed,
		})
	}
	return dataset, nil
}

func formatHours(value float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(value, 'f', 1, 64), "0"), ".")
}
