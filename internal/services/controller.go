package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jasonscribd/transcribe-my-journal/internal/config"
	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
	"github.com/jasonscribd/transcribe-my-journal/internal/storage"
)

// batchSaveEvery is how many successful completions pass between persists
// during a batch run. The project is always saved once more at the end.
const batchSaveEvery = 5

// ProjectController drives pages through the transcription state machine
// and persists the project after each mutation. Mutating operations are
// serialized per project: each one takes the project's lock, reads the
// current state from the store, and saves before releasing, so at most one
// transcription or improvement call is in flight per project and no
// concurrent edit is ever overwritten by a stale whole-project save.
type ProjectController struct {
	store       *storage.ProjectStore
	settings    *storage.SettingsStore
	files       *storage.FileManager
	transcriber Transcriber
	improver    Improver

	defaultModel  string
	defaultPrompt string
	batchDelay    time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewProjectController(cfg config.Config, store *storage.ProjectStore, settings *storage.SettingsStore, files *storage.FileManager, transcriber Transcriber, improver Improver) *ProjectController {
	return &ProjectController{
		store:         store,
		settings:      settings,
		files:         files,
		transcriber:   transcriber,
		improver:      improver,
		defaultModel:  cfg.DefaultModel,
		defaultPrompt: cfg.DefaultPrompt,
		batchDelay:    cfg.BatchDelay,
		locks:         make(map[string]*sync.Mutex),
	}
}

// lockProject acquires the per-project mutex, creating it on first use, and
// returns the matching unlock.
func (c *ProjectController) lockProject(id string) func() {
	c.locksMu.Lock()
	lock, ok := c.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[id] = lock
	}
	c.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// loadProject fetches the current persisted state; callers must hold the
// project lock.
func (c *ProjectController) loadProject(id string) (domain.Project, error) {
	project, ok := c.store.GetByID(id)
	if !ok {
		return domain.Project{}, domain.ErrProjectNotFound
	}
	return project, nil
}

// credentials resolves the effective key, model, and prompt from settings,
// falling back to the configured defaults.
func (c *ProjectController) credentials() (apiKey, model, prompt string, err error) {
	settings := c.settings.Get()
	if settings.APIKey == "" {
		return "", "", "", domain.ErrNoAPIKey
	}

	model = settings.Model
	if model == "" {
		model = c.defaultModel
	}
	prompt = settings.Prompt
	if prompt == "" {
		prompt = c.defaultPrompt
	}
	return settings.APIKey, model, prompt, nil
}

// TranscribePage runs one transcription call for a single page. On failure
// the page is rolled back to pending so it stays retry-eligible, the
// rollback is persisted, and the error is returned to the caller.
func (c *ProjectController) TranscribePage(ctx context.Context, projectID string, idx int) (domain.Page, error) {
	unlock := c.lockProject(projectID)
	defer unlock()

	project, err := c.loadProject(projectID)
	if err != nil {
		return domain.Page{}, err
	}
	page, err := c.pageAt(&project, idx)
	if err != nil {
		return domain.Page{}, err
	}
	if !page.ImageSourced() {
		return domain.Page{}, fmt.Errorf("page %d has no image to transcribe", idx)
	}

	apiKey, model, prompt, err := c.credentials()
	if err != nil {
		return domain.Page{}, err
	}

	page.Status = domain.StatusWorking

	text, err := c.transcribeOne(ctx, page, apiKey, model, prompt)
	if err != nil {
		page.Status = domain.StatusPending
		if saveErr := c.store.Save(&project); saveErr != nil {
			log.Printf("project %s: persisting rollback failed: %v", project.ID, saveErr)
		}
		return domain.Page{}, err
	}

	page.Transcript = text
	page.Status = domain.StatusDone
	if err := c.store.Save(&project); err != nil {
		return domain.Page{}, err
	}
	return *page, nil
}

// RunBatch transcribes every not-yet-done page in document order. Per-page
// failures mark the page error and the run continues; the batch never stops
// early because of a bad page. Progress is persisted every few completions,
// on cancellation, and once more at the end. The returned count is the
// number of pages that ended done as a direct result of this run.
func (c *ProjectController) RunBatch(ctx context.Context, projectID string) (int, error) {
	unlock := c.lockProject(projectID)
	defer unlock()

	project, err := c.loadProject(projectID)
	if err != nil {
		return 0, err
	}

	apiKey, model, prompt, err := c.credentials()
	if err != nil {
		return 0, err
	}

	completed := 0
	first := true
	for i := range project.Pages {
		page := &project.Pages[i]
		if !batchEligible(*page) {
			continue
		}

		// Fixed pacing between consecutive calls; not adaptive backoff.
		if !first {
			select {
			case <-ctx.Done():
				// Pages completed since the last checkpoint must survive
				// the cancelled run.
				if saveErr := c.store.Save(&project); saveErr != nil {
					log.Printf("project %s: persisting cancelled batch failed: %v", project.ID, saveErr)
				}
				return completed, ctx.Err()
			case <-time.After(c.batchDelay):
			}
		}
		first = false

		page.Status = domain.StatusWorking
		text, err := c.transcribeOne(ctx, page, apiKey, model, prompt)
		if err != nil {
			log.Printf("project %s: page %d failed: %v", project.ID, i+1, err)
			page.Status = domain.StatusError
			continue
		}

		page.Transcript = text
		page.Status = domain.StatusDone
		completed++

		if completed%batchSaveEvery == 0 {
			if err := c.store.Save(&project); err != nil {
				return completed, err
			}
		}
	}

	return completed, c.store.Save(&project)
}

// batchEligible selects pages whose transcript is empty or that are still
// pending; done pages and text-sourced pages are skipped.
func batchEligible(page domain.Page) bool {
	if !page.ImageSourced() {
		return false
	}
	if page.Status == domain.StatusDone {
		return false
	}
	return page.Transcript == "" || page.Status == domain.StatusPending
}

func (c *ProjectController) transcribeOne(ctx context.Context, page *domain.Page, apiKey, model, prompt string) (string, error) {
	imageBytes, err := c.files.ReadPageImage(page.ImagePath)
	if err != nil {
		return "", err
	}
	return c.transcriber.Transcribe(ctx, imageBytes, apiKey, model, prompt)
}

// ImprovePage rewrites the transcript of a text-sourced page. Status is not
// touched: improvement only changes the transcript, and the untouched input
// stays available in OriginalText.
func (c *ProjectController) ImprovePage(ctx context.Context, projectID string, idx int) (domain.Page, error) {
	unlock := c.lockProject(projectID)
	defer unlock()

	project, err := c.loadProject(projectID)
	if err != nil {
		return domain.Page{}, err
	}
	page, err := c.pageAt(&project, idx)
	if err != nil {
		return domain.Page{}, err
	}
	if page.ImageSourced() {
		return domain.Page{}, fmt.Errorf("page %d is image-sourced; improvement applies to text pages", idx)
	}

	apiKey, model, _, err := c.credentials()
	if err != nil {
		return domain.Page{}, err
	}

	improved, err := c.improver.Improve(ctx, page.Transcript, apiKey, model)
	if err != nil {
		return domain.Page{}, err
	}

	page.Transcript = improved
	if err := c.store.Save(&project); err != nil {
		return domain.Page{}, err
	}
	return *page, nil
}

// UpdateTranscript applies a user edit. Edits never change status and are
// persisted immediately: the last edit before any read always wins.
func (c *ProjectController) UpdateTranscript(projectID string, idx int, text string) (domain.Page, error) {
	unlock := c.lockProject(projectID)
	defer unlock()

	project, err := c.loadProject(projectID)
	if err != nil {
		return domain.Page{}, err
	}
	page, err := c.pageAt(&project, idx)
	if err != nil {
		return domain.Page{}, err
	}

	page.Transcript = text
	if err := c.store.Save(&project); err != nil {
		return domain.Page{}, err
	}
	return *page, nil
}

func (c *ProjectController) pageAt(project *domain.Project, idx int) (*domain.Page, error) {
	if idx < 0 || idx >= len(project.Pages) {
		return nil, fmt.Errorf("page index %d: %w", idx, domain.ErrPageNotFound)
	}
	return &project.Pages[idx], nil
}
