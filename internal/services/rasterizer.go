package services

import (
	"context"
	"errors"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

// Rasterizer converts a PDF document into one raster image per page.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfBytes []byte) ([]image.Image, error)
}

// FitzRasterizer renders PDF pages with MuPDF via go-fitz.
type FitzRasterizer struct{}

func NewFitzRasterizer() *FitzRasterizer {
	return &FitzRasterizer{}
}

func (r *FitzRasterizer) Rasterize(ctx context.Context, pdfBytes []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfBytes)
	if err != nil {
		return nil, &domain.RasterizationError{Err: err}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, &domain.RasterizationError{Err: errors.New("document has no pages")}
	}

	images := make([]image.Image, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.Image(pageNum)
		if err != nil {
			return nil, &domain.RasterizationError{Err: err}
		}
		images = append(images, img)
	}

	return images, nil
}
