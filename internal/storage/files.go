package storage

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

// FileManager owns the on-disk layout under the data directory: rendered
// page images and generated export artifacts.
type FileManager struct {
	baseDir   string
	imageDir  string
	exportDir string
}

func NewFileManager(baseDir string) (*FileManager, error) {
	fm := &FileManager{
		baseDir:   baseDir,
		imageDir:  filepath.Join(baseDir, "images"),
		exportDir: filepath.Join(baseDir, "exports"),
	}

	for _, dir := range []string{fm.baseDir, fm.imageDir, fm.exportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.StorageError{Op: "create dir", Err: fmt.Errorf("%s: %w", dir, err)}
		}
	}

	return fm, nil
}

// SavePageImage writes a rendered page as PNG and returns the stable path
// that gets persisted in the page record.
func (fm *FileManager) SavePageImage(img image.Image) (string, error) {
	path := filepath.Join(fm.imageDir, uuid.NewString()+".png")
	if err := imaging.Save(img, path); err != nil {
		return "", &domain.StorageError{Op: "save image", Err: err}
	}
	return path, nil
}

// LoadPageImage re-decodes a persisted page reference back into a usable
// image.
func (fm *FileManager) LoadPageImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &domain.StorageError{Op: "load image", Err: err}
	}
	return img, nil
}

// ReadPageImage returns the raw encoded bytes of a persisted page image,
// for serving and for the transcription payload.
func (fm *FileManager) ReadPageImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.StorageError{Op: "read image", Err: err}
	}
	return data, nil
}

// ExportPath returns the location for a generated export artifact.
func (fm *FileManager) ExportPath(name string) string {
	return filepath.Join(fm.exportDir, name)
}
