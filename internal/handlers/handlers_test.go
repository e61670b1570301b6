package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/health"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/repos"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	name string

	mu      sync.Mutex
	pushed  []json.RawMessage
	pushErr error
}

func (q *fakeQueue) Name() string { return q.name }

func (q *fakeQueue) Push(_ context.Context, payload any, _ *queue.PushOptions) (string, error) {
	if q.pushErr != nil {
		return "", q.pushErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	q.pushed = append(q.pushed, raw)
	q.mu.Unlock()
	return "job-fake", nil
}

func (q *fakeQueue) Pull(ctx context.Context, _ int, _ queue.Handler) error {
	<-ctx.Done()
	return nil
}

func (q *fakeQueue) Depth(context.Context) (int64, error) { return int64(len(q.pushed)), nil }
func (q *fakeQueue) Close() error                         { return nil }

func newTestHandler(t *testing.T) (*ImportHandler, *fakeQueue, *gorm.DB) {
	t.Helper()
	log := logger.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&domain.Note{}, &domain.Ingredient{}, &domain.Instruction{},
		&domain.Source{}, &domain.Image{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	q := &fakeQueue{name: queue.QueueNotes}
	h := NewImportHandler(log, q,
		repos.NewNoteRepo(db, log),
		repos.NewImageRepo(db, log),
		repos.NewIngredientRepo(db, log),
		repos.NewInstructionRepo(db, log),
		repos.NewSourceRepo(db, log),
	)
	return h, q, db
}

func newTestRouter(h *ImportHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/import", h.Import)
	r.GET("/api/import/:importId", h.GetImport)
	return r
}

func TestImportEnqueuesEachNote(t *testing.T) {
	h, q, _ := newTestHandler(t)
	r := newTestRouter(h)

	body := `{"notes":[
		{"html":"<html><h1>Chili</h1></html>","sourceUrl":"https://example.com/chili"},
		{"html":"<html><h1>Toast</h1></html>"}
	]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Imports []struct {
			ImportID string `json:"importId"`
			JobID    string `json:"jobId"`
		} `json:"imports"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Imports) != 2 || resp.Imports[0].ImportID == "" {
		t.Fatalf("response = %+v", resp)
	}
	if len(q.pushed) != 2 {
		t.Fatalf("pushed = %d, want 2", len(q.pushed))
	}

	var job domain.NoteJobData
	if err := json.Unmarshal(q.pushed[0], &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.ImportID != resp.Imports[0].ImportID || job.SourceURL != "https://example.com/chili" {
		t.Fatalf("job = %+v", job)
	}
}

func TestImportRejectsEmptyBody(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	for _, body := range []string{`{}`, `{"notes":[]}`, `{"notes":[{"sourceUrl":"x"}]}`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestImportReportsQueueOutage(t *testing.T) {
	h, q, _ := newTestHandler(t)
	q.pushErr = errors.New("redis gone")
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/import",
		bytes.NewBufferString(`{"notes":[{"html":"<p>x</p>"}]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestGetImportReturnsAggregatedNote(t *testing.T) {
	h, _, db := newTestHandler(t)
	r := newTestRouter(h)
	log := logger.NewNop()

	notes := repos.NewNoteRepo(db, log)
	note := &domain.Note{ImportID: "imp-1", Title: "Chili", Status: domain.NoteStatusCompleted}
	if err := notes.Create(context.Background(), note); err != nil {
		t.Fatalf("seed note: %v", err)
	}
	if err := repos.NewIngredientRepo(db, log).Upsert(context.Background(), &domain.Ingredient{
		NoteID: note.ID, LineIndex: 0, Raw: "2 cups beans", Name: "beans",
	}); err != nil {
		t.Fatalf("seed ingredient: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/import/imp-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Note        domain.Note          `json:"note"`
		Ingredients []*domain.Ingredient `json:"ingredients"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Note.Title != "Chili" || len(resp.Ingredients) != 1 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestGetImportUnknownIDIs404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := newTestRouter(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/import/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHealthzReflectsProbeState(t *testing.T) {
	log := logger.NewNop()
	monitor := health.NewMonitor(log, 0)
	monitor.RegisterProbe("postgres", func(context.Context) error { return nil })

	r := gin.New()
	r.GET("/healthz", NewHealthHandler(monitor).Healthz)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	monitor.RegisterProbe("redis", func(context.Context) error { return errors.New("down") })
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
