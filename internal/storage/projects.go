package storage

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
)

type projectsFile struct {
	Projects []domain.Project `json:"projects"`
}

// ProjectStore persists projects in a single JSON file under the data
// directory. Projects keep their insertion order; writes replace the whole
// file atomically.
type ProjectStore struct {
	mu   sync.RWMutex
	path string
	data projectsFile
}

func NewProjectStore(baseDir string) (*ProjectStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, &domain.StorageError{Op: "init", Err: err}
	}

	store := &ProjectStore{path: filepath.Join(baseDir, "projects.json")}
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *ProjectStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = projectsFile{Projects: []domain.Project{}}

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.saveLocked()
	}
	if err != nil {
		return &domain.StorageError{Op: "open", Err: err}
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			return s.saveLocked()
		}
		return &domain.StorageError{Op: "decode", Err: err}
	}

	s.normalize()
	return nil
}

// Save upserts a project. A project without an ID is assigned one. Only
// storable page fields are written: live decoded images are reduced to their
// file references by toStorable before serialization.
func (s *ProjectStore) Save(project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if project.ID == "" {
		project.ID = uuid.NewString()
	}

	record := toStorable(*project)

	replaced := false
	for i := range s.data.Projects {
		if s.data.Projects[i].ID == record.ID {
			s.data.Projects[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		s.data.Projects = append(s.data.Projects, record)
	}

	return s.saveLocked()
}

// GetAll returns every stored project in insertion order.
func (s *ProjectStore) GetAll() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projects := make([]domain.Project, len(s.data.Projects))
	for i, p := range s.data.Projects {
		projects[i] = copyProject(p)
	}
	return projects
}

// GetByID returns one project, or ok=false when no record with that ID
// exists. A missing record is a successful empty result, not an error.
func (s *ProjectStore) GetByID(id string) (domain.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data.Projects {
		if p.ID == id {
			return copyProject(p), true
		}
	}
	return domain.Project{}, false
}

// toStorable is the single mapping from a live project to its serialized
// form: decoded image handles are dropped, everything else is copied.
func toStorable(p domain.Project) domain.Project {
	record := p
	record.Pages = make([]domain.Page, len(p.Pages))
	for i, page := range p.Pages {
		page.Image = nil
		record.Pages[i] = page
	}
	return record
}

func copyProject(p domain.Project) domain.Project {
	out := p
	out.Pages = make([]domain.Page, len(p.Pages))
	copy(out.Pages, p.Pages)
	return out
}

// normalize repairs records after a reload. A page persisted mid-call as
// "working" is reset to "pending" so it becomes retry-eligible; a page with
// no status gets one inferred from its transcript.
func (s *ProjectStore) normalize() {
	for pi := range s.data.Projects {
		pages := s.data.Projects[pi].Pages
		for i, page := range pages {
			switch page.Status {
			case domain.StatusWorking:
				pages[i].Status = domain.StatusPending
			case "":
				if page.Transcript != "" {
					pages[i].Status = domain.StatusDone
				} else {
					pages[i].Status = domain.StatusPending
				}
			}
		}
	}
}

func (s *ProjectStore) saveLocked() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "projects-*.json")
	if err != nil {
		return &domain.StorageError{Op: "create temp", Err: err}
	}

	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "encode", Err: err}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "close temp", Err: err}
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &domain.StorageError{Op: "replace", Err: err}
	}

	return nil
}
