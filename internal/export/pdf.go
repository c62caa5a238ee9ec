// Package export renders PDF documents: the admin student roster and
// individual career reports.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/guidopia/apiserver/internal/store"
	"github.com/guidopia/apiserver/types"
)

const rosterTitle = "GUIDOPIA - Admin Student Report"

// StudentsPDF writes a tabular roster of the given students to w.
// The filter values are echoed in the header so the reader knows what
// subset they are looking at.
func StudentsPDF(w io.Writer, students []types.User, filter store.StudentFilter, total int) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(6, 95, 70)
	pdf.CellFormat(0, 8, rosterTitle, "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(55, 65, 81)
	pdf.CellFormat(0, 5, "Generated: "+time.Now().Format("02 Jan 2006 15:04"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Total Students: %d", total), "", 1, "L", false, 0, "")
	if filter.Class != "" {
		pdf.CellFormat(0, 5, "Class Filter: "+filter.Class, "", 1, "L", false, 0, "")
	}
	if filter.Search != "" {
		pdf.CellFormat(0, 5, "Search: "+filter.Search, "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	headers := []string{"#", "Student", "Class", "Contact", "Email", "Joined"}
	widths := []float64{10, 48, 18, 30, 52, 24}

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetTextColor(17, 24, 39)
	pdf.SetDrawColor(229, 231, 235)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for idx, student := range students {
		joined := student.CreatedAt.Format("02 Jan 2006")
		cells := []string{
			fmt.Sprintf("%d", idx+1),
			student.FullName,
			student.Class,
			student.Phone,
			student.Email,
			joined,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 6, truncate(cell, 34), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

// ReportPDF writes a career report with its parsed sections to w.
func ReportPDF(w io.Writer, user types.User, report types.Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(6, 95, 70)
	pdf.CellFormat(0, 9, "Career Assessment Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(55, 65, 81)
	pdf.CellFormat(0, 6, "Student: "+user.FullName, "", 1, "L", false, 0, "")
	if user.Class != "" {
		pdf.CellFormat(0, 6, "Class: "+user.Class, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Generated: "+report.CreatedAt.Format("02 Jan 2006"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, section := range report.Sections {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(17, 24, 39)
		pdf.CellFormat(0, 7, section.Title, "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(55, 65, 81)
		pdf.MultiCell(0, 5, section.Body, "", "L", false)
		pdf.Ln(3)
	}

	return pdf.Output(w)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
