package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/campus-board/enroll-api/internal/models"
	apperrors "github.com/campus-board/enroll-api/pkg/errors"
	"github.com/campus-board/enroll-api/pkg/export"
)

// ExportFormat names a supported grade report format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered report ready to be streamed to the client.
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders section grade reports. Authorization is delegated to
// the grade service so export shares the same ownership rules as the JSON
// views.
type ExportService struct {
	grades  *GradeService
	catalog CatalogStore
	logger  *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(grades *GradeService, catalog CatalogStore, logger *zap.Logger) *ExportService {
	return &ExportService{grades: grades, catalog: catalog, logger: logger}
}

// SectionGradeReport renders the section's grades as CSV or PDF.
func (s *ExportService) SectionGradeReport(ctx context.Context, callerID string, role models.UserRole, sectionID string, format ExportFormat) (*ExportFile, error) {
	rows, err := s.grades.ListForSection(ctx, callerID, role, sectionID)
	if err != nil {
		return nil, err
	}
	detail, err := s.catalog.FindSectionDetail(ctx, sectionID)
	if err != nil {
		return nil, apperrors.FromError(err)
	}

	table := export.Table{
		Headers: []string{"Student", "Email", "Grade", "Percentage", "Remarks"},
		Rows:    make([][]string, 0, len(rows)),
	}
	for _, row := range rows {
		percentage := ""
		if row.Percentage != nil {
			percentage = strconv.FormatFloat(*row.Percentage, 'f', 2, 64)
		}
		remarks := ""
		if row.Remarks != nil {
			remarks = *row.Remarks
		}
		table.Rows = append(table.Rows, []string{row.StudentName, row.StudentEmail, row.Grade.Grade, percentage, remarks})
	}

	title := fmt.Sprintf("%s %s grades", detail.CourseCode, detail.Name)
	base := fmt.Sprintf("grades_%s_%s_%d", detail.CourseCode, detail.Semester, detail.Year)

	switch format {
	case ExportFormatCSV:
		data, err := export.CSV(table)
		if err != nil {
			return nil, apperrors.FromError(err)
		}
		return &ExportFile{FileName: base + ".csv", ContentType: "text/csv", Data: data}, nil
	case ExportFormatPDF:
		data, err := export.PDF(table, title)
		if err != nil {
			return nil, apperrors.FromError(err)
		}
		return &ExportFile{FileName: base + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, apperrors.Clone(apperrors.ErrValidation, "unsupported export format")
	}
}
