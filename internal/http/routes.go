package http

import (
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
	"github.com/jasonscribd/transcribe-my-journal/internal/services"
	"github.com/jasonscribd/transcribe-my-journal/internal/storage"
)

type API struct {
	store      *storage.ProjectStore
	settings   *storage.SettingsStore
	files      *storage.FileManager
	controller *services.ProjectController
	ingester   *services.Ingester
	exporter   *services.Exporter
	share      *services.ShareService
}

func NewAPI(store *storage.ProjectStore, settings *storage.SettingsStore, files *storage.FileManager, controller *services.ProjectController, ingester *services.Ingester, exporter *services.Exporter, share *services.ShareService) *API {
	return &API{
		store:      store,
		settings:   settings,
		files:      files,
		controller: controller,
		ingester:   ingester,
		exporter:   exporter,
		share:      share,
	}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)

		apiGroup.GET("/projects", api.handleListProjects)
		apiGroup.POST("/projects", api.handleUpload)
		apiGroup.GET("/projects/:id", api.handleGetProject)

		apiGroup.GET("/projects/:id/pages/:idx/image", api.handlePageImage)
		apiGroup.POST("/projects/:id/pages/:idx/transcribe", api.handleTranscribePage)
		apiGroup.POST("/projects/:id/pages/:idx/improve", api.handleImprovePage)
		apiGroup.PUT("/projects/:id/pages/:idx/transcript", api.handleUpdateTranscript)

		apiGroup.POST("/projects/:id/batch", api.handleRunBatch)

		apiGroup.GET("/projects/:id/export/txt", api.handleExportText)
		apiGroup.GET("/projects/:id/export/pdf", api.handleExportPDF)
		apiGroup.POST("/projects/:id/share", api.handleShareProject)
		apiGroup.GET("/export/all", api.handleExportAll)

		apiGroup.GET("/settings", api.handleGetSettings)
		apiGroup.PUT("/settings", api.handleSaveSettings)
		apiGroup.DELETE("/settings/key", api.handleClearAPIKey)
	}

	r.GET("/share/:id", api.handleServeSharedPDF)
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, a.store.GetAll())
}

func (a *API) handleGetProject(c *gin.Context) {
	project, ok := a.store.GetByID(c.Param("id"))
	if !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return
	}
	c.JSON(http.StatusOK, project)
}

func (a *API) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing file")
		return
	}
	log.Printf("Received upload: filename=%s size=%d", fileHeader.Filename, fileHeader.Size)

	upload, err := fileHeader.Open()
	if err != nil {
		log.Printf("error opening upload: %v", err)
		respondMessage(c, http.StatusInternalServerError, "unable to read uploaded file")
		return
	}
	defer upload.Close()

	data, err := io.ReadAll(upload)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "unable to read uploaded file")
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	project, err := a.ingester.Ingest(c.Request.Context(), fileHeader.Filename, contentType, data)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	if err := a.store.Save(project); err != nil {
		respondDomainError(c, err)
		return
	}
	log.Printf("Project %s created with %d page(s)", project.ID, len(project.Pages))

	c.JSON(http.StatusCreated, project)
}

func (a *API) handlePageImage(c *gin.Context) {
	project, idx, ok := a.projectPage(c)
	if !ok {
		return
	}

	page := project.Pages[idx]
	if !page.ImageSourced() {
		respondMessage(c, http.StatusNotFound, "page has no image")
		return
	}

	data, err := a.files.ReadPageImage(page.ImagePath)
	if err != nil {
		respondMessage(c, http.StatusNotFound, "page image not found")
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}

func (a *API) handleTranscribePage(c *gin.Context) {
	idx, ok := a.pageIndex(c)
	if !ok {
		return
	}

	page, err := a.controller.TranscribePage(c.Request.Context(), c.Param("id"), idx)
	if err != nil {
		log.Printf("transcription failed: %v", err)
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (a *API) handleImprovePage(c *gin.Context) {
	idx, ok := a.pageIndex(c)
	if !ok {
		return
	}

	page, err := a.controller.ImprovePage(c.Request.Context(), c.Param("id"), idx)
	if err != nil {
		log.Printf("improvement failed: %v", err)
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (a *API) handleUpdateTranscript(c *gin.Context) {
	idx, ok := a.pageIndex(c)
	if !ok {
		return
	}

	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	page, err := a.controller.UpdateTranscript(c.Param("id"), idx, payload.Transcript)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (a *API) handleRunBatch(c *gin.Context) {
	completed, err := a.controller.RunBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Printf("batch run failed: %v", err)
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"completed": completed})
}

func (a *API) handleExportText(c *gin.Context) {
	project, ok := a.store.GetByID(c.Param("id"))
	if !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return
	}

	filename := a.exporter.Filename("transcript", "txt")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(a.exporter.Text(project)))
}

func (a *API) handleExportAll(c *gin.Context) {
	projects := a.store.GetAll()
	if len(projects) == 0 {
		respondMessage(c, http.StatusNotFound, "no transcripts found to export")
		return
	}

	text := a.exporter.AllText(projects)
	if strings.TrimSpace(text) == "" {
		respondMessage(c, http.StatusNotFound, "no transcripts found to export")
		return
	}

	filename := a.exporter.Filename("journal-transcripts", "txt")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

func (a *API) handleExportPDF(c *gin.Context) {
	project, ok := a.store.GetByID(c.Param("id"))
	if !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return
	}

	outPath := a.files.ExportPath(project.ID + ".pdf")
	if err := a.exporter.PDF(project, outPath); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(outPath, a.exporter.Filename("transcript", "pdf"))
}

func (a *API) handleShareProject(c *gin.Context) {
	project, ok := a.store.GetByID(c.Param("id"))
	if !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return
	}

	// The shared link serves the PDF artifact; generate it up front so the
	// link does not break later.
	outPath := a.files.ExportPath(project.ID + ".pdf")
	if err := a.exporter.PDF(project, outPath); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	url, expiresAt, err := a.share.Generate(project.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url, "expiresAt": expiresAt.UTC()})
}

func (a *API) handleServeSharedPDF(c *gin.Context) {
	projectID := c.Param("id")
	expiresParam := c.Query("exp")
	signature := c.Query("sig")

	if expiresParam == "" || signature == "" {
		respondMessage(c, http.StatusBadRequest, "missing signature")
		return
	}

	expires, err := strconv.ParseInt(expiresParam, 10, 64)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "invalid expiration")
		return
	}

	// Authenticate the link before revealing anything about its state.
	if !a.share.Validate(c.Request.URL.Path, expires, signature) {
		respondMessage(c, http.StatusForbidden, "invalid signature")
		return
	}

	if expires < time.Now().Unix() {
		respondMessage(c, http.StatusGone, "link expired")
		return
	}

	if _, ok := a.store.GetByID(projectID); !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return
	}

	pdfPath := a.files.ExportPath(projectID + ".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		respondMessage(c, http.StatusNotFound, "pdf not found")
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(pdfPath, filepath.Base(pdfPath))
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings := a.settings.Get()
	c.JSON(http.StatusOK, gin.H{
		"hasApiKey": settings.APIKey != "",
		"model":     settings.Model,
		"prompt":    settings.Prompt,
	})
}

func (a *API) handleSaveSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	if err := a.settings.Save(patch); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) handleClearAPIKey(c *gin.Context) {
	if err := a.settings.ClearAPIKey(); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// projectPage resolves the :id/:idx pair for read-only page handlers.
func (a *API) projectPage(c *gin.Context) (domain.Project, int, bool) {
	project, ok := a.store.GetByID(c.Param("id"))
	if !ok {
		respondMessage(c, http.StatusNotFound, "project not found")
		return domain.Project{}, 0, false
	}

	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 || idx >= len(project.Pages) {
		respondMessage(c, http.StatusNotFound, "page not found")
		return domain.Project{}, 0, false
	}

	return project, idx, true
}

// pageIndex parses :idx for the mutating page handlers; existence checks
// happen inside ProjectController under the project lock.
func (a *API) pageIndex(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		respondMessage(c, http.StatusNotFound, "page not found")
		return 0, false
	}
	return idx, true
}

func respondDomainError(c *gin.Context, err error) {
	var remote *domain.RemoteError
	var storageErr *domain.StorageError
	var rasterErr *domain.RasterizationError

	switch {
	case errors.Is(err, domain.ErrProjectNotFound):
		respondMessage(c, http.StatusNotFound, "project not found")
	case errors.Is(err, domain.ErrPageNotFound):
		respondMessage(c, http.StatusNotFound, "page not found")
	case errors.Is(err, domain.ErrNoAPIKey):
		respondMessage(c, http.StatusBadRequest, "set your API key in settings first")
	case errors.Is(err, domain.ErrUnsupportedInput):
		respondMessage(c, http.StatusBadRequest, "unsupported file type, upload a PDF, image, or text file")
	case errors.As(err, &rasterErr):
		respondMessage(c, http.StatusBadRequest, "could not render the PDF, the file may be corrupt")
	case errors.As(err, &remote):
		respondError(c, http.StatusBadGateway, err)
	case errors.As(err, &storageErr):
		respondError(c, http.StatusInternalServerError, err)
	default:
		respondError(c, http.StatusInternalServerError, err)
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
