package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

// Exporter serializes project transcripts into downloadable artifacts:
// plain text and a PDF document.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// Text concatenates each page's transcript under a "Page N" heading,
// separated by blank lines.
func (e *Exporter) Text(project domain.Project) string {
	parts := make([]string, 0, len(project.Pages))
	for i, page := range project.Pages {
		parts = append(parts, fmt.Sprintf("Page %d\n\n%s\n", i+1, page.Transcript))
	}
	return strings.Join(parts, "\n")
}

// AllText bundles every project into one document, skipping pages without a
// transcript.
func (e *Exporter) AllText(projects []domain.Project) string {
	var b strings.Builder
	for i, project := range projects {
		title := project.Title
		if title == "" {
			title = fmt.Sprintf("Project %d", i+1)
		}
		b.WriteString(fmt.Sprintf("=== %s ===\n", title))
		b.WriteString(fmt.Sprintf("Created: %s\n\n", time.UnixMilli(project.CreatedAt).Format("2006-01-02")))

		for pi, page := range project.Pages {
			if strings.TrimSpace(page.Transcript) == "" {
				continue
			}
			b.WriteString(fmt.Sprintf("--- Page %d ---\n", pi+1))
			b.WriteString(strings.TrimSpace(page.Transcript))
			b.WriteString("\n\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Filename stamps an export artifact with the current date.
func (e *Exporter) Filename(prefix, ext string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, time.Now().Format("2006-01-02"), ext)
}

// PDF writes the project's transcript as a PDF document, one section per
// page.
func (e *Exporter) PDF(project domain.Project, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure pdf directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	title := project.Title
	if strings.TrimSpace(title) == "" {
		title = "Transcript"
	}
	pdf.SetTitle(title, false)
	pdf.SetAuthor("transcribe-my-journal", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	createdAt := time.UnixMilli(project.CreatedAt).Local()
	pdf.Cell(0, 6, fmt.Sprintf("Created: %s", createdAt.Format("2006-01-02 15:04")))
	pdf.Ln(12)

	for i, page := range project.Pages {
		e.writePageSection(pdf, fmt.Sprintf("Page %d", i+1), page.Transcript)
		pdf.Ln(8)
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}

	return nil
}

func (e *Exporter) writePageSection(pdf *gofpdf.Fpdf, heading, content string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, heading)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)

	content = strings.TrimSpace(content)
	if content == "" {
		pdf.MultiCell(0, 6, "(empty)", "", "L", false)
		return
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pdf.MultiCell(0, 6, line, "", "L", false)
	}
}
