package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
	"github.com/jasonscribd/transcribe-my-journal/internal/storage"
)

// wordsPerPage is the window of the plain-text splitter: text documents are
// chunked into fixed-size pages by word count.
const wordsPerPage = 200

var textExtensions = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
}

// Ingester normalizes an uploaded source file into a project. PDFs are
// rasterized one image per page, images become a single page, and plain
// text is split into fixed-window word chunks that start out done.
type Ingester struct {
	rasterizer   Rasterizer
	files        *storage.FileManager
	maxImageEdge int
}

func NewIngester(rasterizer Rasterizer, files *storage.FileManager, maxImageEdge int) *Ingester {
	return &Ingester{rasterizer: rasterizer, files: files, maxImageEdge: maxImageEdge}
}

func (ing *Ingester) Ingest(ctx context.Context, filename, contentType string, data []byte) (*domain.Project, error) {
	kind := detectKind(filename, contentType, data)

	var pages []domain.Page
	var err error

	switch kind {
	case "pdf":
		pages, err = ing.ingestPDF(ctx, data)
	case "image":
		pages, err = ing.ingestImage(data)
	case "text":
		pages = ingestText(string(data))
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedInput, contentType)
	}
	if err != nil {
		return nil, err
	}

	return &domain.Project{
		Title:     filename,
		CreatedAt: time.Now().UnixMilli(),
		Pages:     pages,
	}, nil
}

func (ing *Ingester) ingestPDF(ctx context.Context, data []byte) ([]domain.Page, error) {
	images, err := ing.rasterizer.Rasterize(ctx, data)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.Page, 0, len(images))
	for _, img := range images {
		page, err := ing.newImagePage(img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (ing *Ingester) ingestImage(data []byte) ([]domain.Page, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable image: %v", domain.ErrUnsupportedInput, err)
	}

	page, err := ing.newImagePage(img)
	if err != nil {
		return nil, err
	}
	return []domain.Page{page}, nil
}

func (ing *Ingester) newImagePage(img image.Image) (domain.Page, error) {
	img = ing.normalize(img)
	path, err := ing.files.SavePageImage(img)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{
		Image:     img,
		ImagePath: path,
		Status:    domain.StatusPending,
	}, nil
}

// normalize caps the long edge of a page image so the inline transcription
// payload stays a reasonable size.
func (ing *Ingester) normalize(img image.Image) image.Image {
	if ing.maxImageEdge <= 0 {
		return img
	}
	bounds := img.Bounds()
	if bounds.Dx() <= ing.maxImageEdge && bounds.Dy() <= ing.maxImageEdge {
		return img
	}
	return imaging.Fit(img, ing.maxImageEdge, ing.maxImageEdge, imaging.Lanczos)
}

// ingestText splits plain text into fixed-window pages. Text-sourced pages
// start out done with the untouched input preserved in OriginalText so an
// improvement pass stays a revertible transform.
func ingestText(text string) []domain.Page {
	chunks := SplitText(text, wordsPerPage)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	pages := make([]domain.Page, 0, len(chunks))
	for _, chunk := range chunks {
		pages = append(pages, domain.Page{
			Transcript:   chunk,
			OriginalText: chunk,
			Status:       domain.StatusDone,
		})
	}
	return pages
}

// SplitText chunks text into pages of at most wordsPerPage words each.
func SplitText(text string, wordsPerPage int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || wordsPerPage <= 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(words); start += wordsPerPage {
		end := start + wordsPerPage
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

func detectKind(filename, contentType string, data []byte) string {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}

	switch {
	case contentType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "text/"):
		return "text"
	}

	if _, ok := textExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return "text"
	}
	return ""
}
