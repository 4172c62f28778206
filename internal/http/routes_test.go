package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jasonscribd/transcribe-my-journal/internal/config"
	"github.com/jasonscribd/transcribe-my-journal/internal/domain"
	"github.com/jasonscribd/transcribe-my-journal/internal/services"
	"github.com/jasonscribd/transcribe-my-journal/internal/storage"
)

type stubTranscriber struct {
	reply string
	err   error
}

func (s *stubTranscriber) Transcribe(ctx context.Context, imageBytes []byte, apiKey, model, prompt string) (string, error) {
	return s.reply, s.err
}

type stubImprover struct{}

func (stubImprover) Improve(ctx context.Context, text, apiKey, model string) (string, error) {
	return text, nil
}

type stubRasterizer struct{}

func (stubRasterizer) Rasterize(ctx context.Context, pdfBytes []byte) ([]image.Image, error) {
	return []image.Image{image.NewRGBA(image.Rect(0, 0, 4, 4))}, nil
}

func setupTestServer(t *testing.T, transcriber services.Transcriber) (*gin.Engine, *storage.SettingsStore) {
	t.Helper()

	tmpDir := t.TempDir()

	cfg := config.Config{
		Port:          "8080",
		BaseURL:       "http://localhost:8080",
		DataDir:       tmpDir,
		DefaultModel:  "gpt-4o-mini",
		DefaultPrompt: "transcribe this",
		ShareSecret:   "secret",
		ShareTTL:      time.Minute,
		MaxImageEdge:  2000,
	}

	files, err := storage.NewFileManager(cfg.DataDir)
	if err != nil {
		t.Fatalf("file manager: %v", err)
	}
	store, err := storage.NewProjectStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("project store: %v", err)
	}
	settings, err := storage.NewSettingsStore(cfg.DataDir)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}

	controller := services.NewProjectController(cfg, store, settings, files, transcriber, stubImprover{})
	ingester := services.NewIngester(stubRasterizer{}, files, cfg.MaxImageEdge)
	exporter := services.NewExporter()
	share := services.NewShareService(cfg)

	engine := gin.New()
	engine.Use(gin.Recovery())
	api := NewAPI(store, settings, files, controller, ingester, exporter, share)
	registerRoutes(engine, api)

	return engine, settings
}

func multipartUpload(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func uploadProject(t *testing.T, engine *gin.Engine, filename string, data []byte) domain.Project {
	t.Helper()

	body, contentType := multipartUpload(t, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/api/projects", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var project domain.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	return project
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if ok, exists := body["ok"].(bool); !exists || !ok {
		t.Fatalf("expected ok=true, body=%v", body)
	}
}

func TestUploadMissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	req := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
	rec := httptest.NewRecorder()

	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] == nil {
		t.Fatalf("expected error message in response")
	}
}

func TestUploadTextCreatesDoneProject(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	project := uploadProject(t, engine, "notes.txt", []byte("hello handwritten world"))
	if project.ID == "" {
		t.Fatalf("expected assigned id")
	}
	if len(project.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(project.Pages))
	}
	if project.Pages[0].Status != domain.StatusDone {
		t.Fatalf("text page should start done, got %q", project.Pages[0].Status)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTranscribePageRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, settings := setupTestServer(t, &stubTranscriber{reply: "dear diary"})

	key := "sk-test"
	if err := settings.Save(domain.SettingsPatch{APIKey: &key}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	project := uploadProject(t, engine, "scan.png", smallPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID+"/pages/0/transcribe", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var page domain.Page
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Status != domain.StatusDone || page.Transcript != "dear diary" {
		t.Fatalf("unexpected page state: %+v", page)
	}
}

func TestTranscribeWithoutAPIKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{reply: "text"})

	project := uploadProject(t, engine, "scan.png", smallPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID+"/pages/0/transcribe", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without api key, got %d", rec.Code)
	}
}

func TestTranscribeUnknownProjectReturns404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, settings := setupTestServer(t, &stubTranscriber{})

	key := "sk-test"
	if err := settings.Save(domain.SettingsPatch{APIKey: &key}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/projects/missing/pages/0/transcribe", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBatchRouteReportsCompletedCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, settings := setupTestServer(t, &stubTranscriber{reply: "page text"})

	key := "sk-test"
	if err := settings.Save(domain.SettingsPatch{APIKey: &key}); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	project := uploadProject(t, engine, "scan.png", smallPNG(t))

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID+"/batch", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Completed int `json:"completed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Completed != 1 {
		t.Fatalf("expected 1 completed page, got %d", body.Completed)
	}
}

func TestUpdateTranscriptRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	project := uploadProject(t, engine, "notes.txt", []byte("original words"))

	payload := strings.NewReader(`{"transcript":"edited words"}`)
	req := httptest.NewRequest(http.MethodPut, "/api/projects/"+project.ID+"/pages/0/transcript", payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID, nil)
	getRec := httptest.NewRecorder()
	engine.ServeHTTP(getRec, getReq)

	var fetched domain.Project
	if err := json.Unmarshal(getRec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if fetched.Pages[0].Transcript != "edited words" {
		t.Fatalf("edit must be persisted, got %q", fetched.Pages[0].Transcript)
	}
	if fetched.Pages[0].Status != domain.StatusDone {
		t.Fatalf("edit must not change status, got %q", fetched.Pages[0].Status)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	put := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"apiKey":"sk-test","model":"gpt-4o"}`))
	put.Header.Set("Content-Type", "application/json")
	putRec := httptest.NewRecorder()
	engine.ServeHTTP(putRec, put)

	if putRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", putRec.Code)
	}

	// Merge: saving only the prompt must keep the key.
	patch := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(`{"prompt":"be careful"}`))
	patch.Header.Set("Content-Type", "application/json")
	patchRec := httptest.NewRecorder()
	engine.ServeHTTP(patchRec, patch)

	get := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	getRec := httptest.NewRecorder()
	engine.ServeHTTP(getRec, get)

	var body struct {
		HasAPIKey bool   `json:"hasApiKey"`
		Model     string `json:"model"`
		Prompt    string `json:"prompt"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !body.HasAPIKey || body.Model != "gpt-4o" || body.Prompt != "be careful" {
		t.Fatalf("unexpected settings: %+v", body)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/settings/key", nil)
	delRec := httptest.NewRecorder()
	engine.ServeHTTP(delRec, del)

	if delRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", delRec.Code)
	}

	getAgain := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	getAgainRec := httptest.NewRecorder()
	engine.ServeHTTP(getAgainRec, getAgain)

	if err := json.Unmarshal(getAgainRec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if body.HasAPIKey {
		t.Fatalf("expected api key cleared")
	}
	if body.Model != "gpt-4o" {
		t.Fatalf("clearing the key must keep the model, got %q", body.Model)
	}
}

func TestExportTxtRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	project := uploadProject(t, engine, "notes.txt", []byte("exported words"))

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+project.ID+"/export/txt", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "transcript-") {
		t.Fatalf("expected dated attachment filename, got %q", cd)
	}
	if got := rec.Body.String(); !strings.Contains(got, "Page 1") || !strings.Contains(got, "exported words") {
		t.Fatalf("unexpected export body:\n%s", got)
	}
}

func TestShareLinkValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine, _ := setupTestServer(t, &stubTranscriber{})

	project := uploadProject(t, engine, "notes.txt", []byte("shared words"))

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+project.ID+"/share", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode share response: %v", err)
	}
	if body.URL == "" {
		t.Fatalf("expected url in response")
	}

	invalidReq := httptest.NewRequest(http.MethodGet, "/share/"+project.ID+"?exp=9999999999&sig=invalid", nil)
	invalidRec := httptest.NewRecorder()
	engine.ServeHTTP(invalidRec, invalidReq)

	if invalidRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid signature, got %d", invalidRec.Code)
	}

	// A correctly signed but expired link is the only way to see 410.
	expiredPath := services.SignURL("/share/"+project.ID, 1, "secret")
	expiredReq := httptest.NewRequest(http.MethodGet, expiredPath, nil)
	expiredRec := httptest.NewRecorder()
	engine.ServeHTTP(expiredRec, expiredReq)

	if expiredRec.Code != http.StatusGone {
		t.Fatalf("expected 410 for expired link, got %d", expiredRec.Code)
	}

	// A forged link learns nothing from the expiry check: bad signature
	// wins even when the timestamp is long past.
	forgedReq := httptest.NewRequest(http.MethodGet, "/share/"+project.ID+"?exp=1&sig=whatever", nil)
	forgedRec := httptest.NewRecorder()
	engine.ServeHTTP(forgedRec, forgedReq)

	if forgedRec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for forged expired link, got %d", forgedRec.Code)
	}
}
