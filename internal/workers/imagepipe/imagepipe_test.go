package imagepipe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/objstore"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/repos"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// fakeStore records uploads in memory. Keys containing a fail marker error
// out, which lets tests exercise the best-effort upload paths.
type fakeStore struct {
	mu       sync.Mutex
	uploads  map[string]int64
	failWhen string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string]int64{}}
}

func (s *fakeStore) UploadFile(_ context.Context, localPath, key string) (*objstore.UploadResult, error) {
	if s.failWhen != "" && strings.Contains(key, s.failWhen) {
		return nil, errors.New("bucket unavailable")
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.uploads[key] = info.Size()
	s.mu.Unlock()
	return &objstore.UploadResult{Key: key, URL: "https://cdn.test/" + key, Size: info.Size()}, nil
}

func (s *fakeStore) UploadBuffer(_ context.Context, data []byte, key string) (*objstore.UploadResult, error) {
	s.mu.Lock()
	s.uploads[key] = int64(len(data))
	s.mu.Unlock()
	return &objstore.UploadResult{Key: key, URL: "https://cdn.test/" + key, Size: int64(len(data))}, nil
}

func (s *fakeStore) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://cdn.test/" + key + "?signed", nil
}

func (s *fakeStore) PublicURL(key string) string { return "https://cdn.test/" + key }

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

type captureSink struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (c *captureSink) Broadcast(v any) error {
	ev, ok := v.(domain.StatusEvent)
	if !ok {
		return fmt.Errorf("unexpected broadcast payload %T", v)
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func newTestDeps(t *testing.T, store objstore.Store) (*workers.Deps, *captureSink) {
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
	if err := db.AutoMigrate(&domain.Note{}, &domain.Image{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sink := &captureSink{}
	broadcaster := services.NewStatusBroadcaster(log, sink)

	return &workers.Deps{
		Log:         log,
		DB:          db,
		Notes:       repos.NewNoteRepo(db, log),
		Images:      repos.NewImageRepo(db, log),
		Store:       store,
		Media:       services.NewMediaProcessor(log),
		Broadcaster: broadcaster,
		Tracker:     services.NewCompletionTracker(log, broadcaster),
		Errors:      errs.NewHandler(log),
		Retry:       errs.RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	}, sink
}

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func testActionContext(queueName string) *workers.ActionContext {
	return &workers.ActionContext{
		JobID:     "job-" + uuid.NewString()[:8],
		QueueName: queueName,
		Attempt:   1,
		StartedAt: time.Now(),
	}
}

func TestUploadOriginalMissingSourceIsFatal(t *testing.T) {
	deps, _ := newTestDeps(t, newFakeStore())
	d := domain.ImageJobData{
		ImportID:  "imp-1",
		ImagePath: filepath.Join(t.TempDir(), "never-written.jpg"),
	}
	_, err := UploadOriginal{}.Execute(context.Background(), testActionContext("image"), d, deps)
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
	if errs.ShouldRetry(err, 1, deps.Retry) {
		t.Fatalf("missing source should not retry: %v", err)
	}
}

func TestUploadOriginalStorageFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	store.failWhen = "originals/"
	deps, _ := newTestDeps(t, store)

	dir := t.TempDir()
	src := filepath.Join(dir, "photo.jpg")
	writeTestJPEG(t, src, 64, 64)

	d := domain.ImageJobData{ImportID: "imp-2", ImagePath: src, Filename: "photo.jpg"}
	out, err := UploadOriginal{}.Execute(context.Background(), testActionContext("image"), d, deps)
	if err != nil {
		t.Fatalf("upload failure must not fail the action: %v", err)
	}
	if out.StorageURL != "" || out.StorageKey != "" {
		t.Fatalf("storage fields set despite failed upload: %+v", out)
	}
}

func TestUploadProcessedPartialFailureKeepsOthers(t *testing.T) {
	store := newFakeStore()
	store.failWhen = "-thumbnail"
	deps, _ := newTestDeps(t, store)

	dir := t.TempDir()
	paths := map[string]string{}
	for _, name := range objstore.Derivatives() {
		p := filepath.Join(dir, "x-"+name+".jpg")
		writeTestJPEG(t, p, 32, 32)
		paths[name] = p
	}

	d := domain.ImageJobData{
		ImportID:      "imp-3",
		ImagePath:     paths[objstore.DerivativeOriginal],
		OriginalPath:  paths[objstore.DerivativeOriginal],
		ThumbnailPath: paths[objstore.DerivativeThumbnail],
		Crop3x2Path:   paths[objstore.DerivativeCrop3x2],
		Crop4x3Path:   paths[objstore.DerivativeCrop4x3],
		Crop16x9Path:  paths[objstore.DerivativeCrop16x9],
	}
	out, err := UploadProcessed{}.Execute(context.Background(), testActionContext("image"), d, deps)
	if err != nil {
		t.Fatalf("partial failure must not fail the action: %v", err)
	}
	if out.StorageThumbnailURL != "" {
		t.Fatal("thumbnail URL set despite failed upload")
	}
	for name, url := range map[string]string{
		"original": out.StorageOriginalURL,
		"crop3x2":  out.StorageCrop3x2URL,
		"crop4x3":  out.StorageCrop4x3URL,
		"crop16x9": out.StorageCrop16x9URL,
	} {
		if url == "" {
			t.Fatalf("%s URL missing", name)
		}
	}
	if store.count() != 4 {
		t.Fatalf("uploads = %d, want 4", store.count())
	}
}

func TestSaveImageAssignsStableID(t *testing.T) {
	deps, _ := newTestDeps(t, newFakeStore())
	noteID := uuid.NewString()
	d := domain.ImageJobData{
		NoteID:              noteID,
		ImportID:            "imp-4",
		StorageOriginalURL:  "https://cdn.test/o.jpg",
		StorageThumbnailURL: "https://cdn.test/t.jpg",
		OriginalSize:        1234,
		Metadata:            &domain.ImageMetadata{Width: 1600, Height: 1067, Format: "jpeg"},
	}

	first, err := SaveImage{}.Execute(context.Background(), testActionContext("image"), d, deps)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.ImageID == "" {
		t.Fatal("ImageID not assigned")
	}

	// A retried job upserts onto the same row.
	second, err := SaveImage{}.Execute(context.Background(), testActionContext("image"), d, deps)
	if err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if second.ImageID != first.ImageID {
		t.Fatalf("ImageID changed on retry: %s != %s", second.ImageID, first.ImageID)
	}

	rec, err := deps.Images.GetByImportID(context.Background(), "imp-4")
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	if rec.OriginalWidth != 1600 || rec.OriginalFormat != "jpeg" || rec.NoteID == nil {
		t.Fatalf("record = %+v", rec)
	}
}

func TestCleanupRemovesScratchFiles(t *testing.T) {
	deps, _ := newTestDeps(t, newFakeStore())
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	src := filepath.Join(dir, "src.jpg")
	thumb := filepath.Join(out, "x-thumbnail.jpg")
	writeTestJPEG(t, src, 16, 16)
	writeTestJPEG(t, thumb, 16, 16)

	d := domain.ImageJobData{
		ImportID:  "imp-5",
		ImagePath: src,
		OutputDir: out,
		// Already-gone path must count as removed.
		OriginalPath:  filepath.Join(out, "x-original.jpg"),
		ThumbnailPath: thumb,
	}
	if _, err := (CleanupLocalFiles{}).Execute(context.Background(), testActionContext("image"), d, deps); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	for _, p := range []string{src, thumb, out} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s still present", p)
		}
	}
}

func TestImagePipelineHappyPath(t *testing.T) {
	store := newFakeStore()
	deps, sink := newTestDeps(t, store)

	noteID := uuid.NewString()
	importID := "imp-happy"
	deps.Tracker.Register(noteID, services.CategoryImage, 1)
	deps.Tracker.BindImport(noteID, importID)

	dir := t.TempDir()
	src := filepath.Join(dir, "recipe-photo.jpg")
	writeTestJPEG(t, src, 2400, 1600)
	outDir := filepath.Join(dir, "derivatives")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	factory, err := NewFactory()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := workers.NewPipeline("image", actions, deps.Log, deps.Errors)

	ac := testActionContext("image")
	out, err := p.Run(context.Background(), ac, domain.ImageJobData{
		NoteID:    noteID,
		ImportID:  importID,
		ImagePath: src,
		OutputDir: outDir,
		Filename:  "recipe-photo.jpg",
	}, deps)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	// One source upload plus five derivatives.
	if store.count() != 6 {
		t.Fatalf("uploads = %d, want 6", store.count())
	}
	if out.ImageID == "" || out.StorageOriginalURL == "" || out.StorageCrop16x9URL == "" {
		t.Fatalf("job data incomplete: %+v", out)
	}

	rec, err := deps.Images.GetByImportID(context.Background(), importID)
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	if rec.ProcessingStatus != domain.ImageStatusCompleted {
		t.Fatalf("status = %s, want completed", rec.ProcessingStatus)
	}
	if rec.OriginalWidth != 1600 || rec.OriginalHeight != 1067 {
		t.Fatalf("dimensions = %dx%d", rec.OriginalWidth, rec.OriginalHeight)
	}

	if !deps.Tracker.IsComplete(noteID, services.CategoryImage) {
		t.Fatal("tracker did not complete the image category")
	}

	// Scratch files are gone.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch dir not cleaned: %v", entries)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var processed, categoryDone bool
	for _, ev := range sink.events {
		if ev.Status == domain.EventProcessing && ev.Context == domain.EventContextImageProcessing {
			processed = true
		}
		if ev.Status == domain.EventCompleted && ev.Context == domain.EventContextImageProcessing {
			categoryDone = true
		}
	}
	if !processed || !categoryDone {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestTerminalFailureRecordsAndUnblocksNote(t *testing.T) {
	deps, sink := newTestDeps(t, newFakeStore())
	noteID := uuid.NewString()
	importID := "imp-dead"
	deps.Tracker.Register(noteID, services.CategoryImage, 1)
	deps.Tracker.BindImport(noteID, importID)

	if _, err := deps.Images.UpsertPending(context.Background(), &domain.Image{ImportID: importID}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	hook := terminalFailure(deps)
	hook(context.Background(),
		&queue.Job{ID: "job-dead", Queue: "image", Attempt: 3},
		domain.ImageJobData{NoteID: noteID, ImportID: importID},
		errors.New("decode forever broken"),
	)

	rec, err := deps.Images.GetByImportID(context.Background(), importID)
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	if rec.ProcessingStatus != domain.ImageStatusFailed || rec.ProcessingError == "" {
		t.Fatalf("record = %+v", rec)
	}
	if !deps.Tracker.IsComplete(noteID, services.CategoryImage) {
		t.Fatal("dead job left the note incomplete")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	var failed bool
	for _, ev := range sink.events {
		if ev.Status == domain.EventFailed {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("no FAILED event in %+v", sink.events)
	}
}

func TestSaveImageFallsBackToLocalURLs(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	deps.ImageBaseURL = "http://files.test"

	d := domain.ImageJobData{
		NoteID:        uuid.NewString(),
		ImportID:      "imp-local",
		ImagePath:     "/scratch/imp-local/photo.jpg",
		OriginalPath:  "/scratch/imp-local/photo-original.jpg",
		ThumbnailPath: "/scratch/imp-local/photo-thumbnail.jpg",
		Crop3x2Path:   "/scratch/imp-local/photo-crop3x2.jpg",
		Crop4x3Path:   "/scratch/imp-local/photo-crop4x3.jpg",
		Crop16x9Path:  "/scratch/imp-local/photo-crop16x9.jpg",
	}
	if _, err := (SaveImage{}).Execute(context.Background(), testActionContext("image"), d, deps); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := deps.Images.GetByImportID(context.Background(), "imp-local")
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	for _, tc := range []struct{ got, want string }{
		{rec.OriginalImageURL, "http://files.test/images/photo-original.jpg"},
		{rec.ThumbnailImageURL, "http://files.test/images/photo-thumbnail.jpg"},
		{rec.Crop3x2ImageURL, "http://files.test/images/photo-crop3x2.jpg"},
		{rec.Crop4x3ImageURL, "http://files.test/images/photo-crop4x3.jpg"},
		{rec.Crop16x9ImageURL, "http://files.test/images/photo-crop16x9.jpg"},
	} {
		if tc.got != tc.want {
			t.Fatalf("url = %q, want %q", tc.got, tc.want)
		}
	}
	if rec.ProcessingStatus != domain.ImageStatusCompleted {
		t.Fatalf("status = %s, want completed", rec.ProcessingStatus)
	}
}

func TestSaveImagePrefersStorageURLs(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	deps.ImageBaseURL = "http://files.test"

	d := domain.ImageJobData{
		ImportID:            "imp-mixed",
		OriginalPath:        "/scratch/imp-mixed/photo-original.jpg",
		ThumbnailPath:       "/scratch/imp-mixed/photo-thumbnail.jpg",
		StorageThumbnailURL: "https://cdn.test/processed/imp-mixed/photo-thumbnail.jpg",
	}
	if _, err := (SaveImage{}).Execute(context.Background(), testActionContext("image"), d, deps); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := deps.Images.GetByImportID(context.Background(), "imp-mixed")
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	if rec.ThumbnailImageURL != "https://cdn.test/processed/imp-mixed/photo-thumbnail.jpg" {
		t.Fatalf("thumbnail url = %q, want the uploaded URL", rec.ThumbnailImageURL)
	}
	if rec.OriginalImageURL != "http://files.test/images/photo-original.jpg" {
		t.Fatalf("original url = %q, want the local fallback", rec.OriginalImageURL)
	}
}

func TestImagePipelineWithoutStoreUsesLocalURLs(t *testing.T) {
	deps, _ := newTestDeps(t, nil)
	deps.ImageBaseURL = "http://localhost:4200"

	noteID := uuid.NewString()
	importID := "imp-nostore"
	deps.Tracker.Register(noteID, services.CategoryImage, 1)
	deps.Tracker.BindImport(noteID, importID)

	dir := t.TempDir()
	src := filepath.Join(dir, "plate.jpg")
	writeTestJPEG(t, src, 640, 480)
	outDir := filepath.Join(dir, "derivatives")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	factory, err := NewFactory()
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	actions, err := factory.Build(PipelineOrder...)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	p := workers.NewPipeline("image", actions, deps.Log, deps.Errors)

	out, err := p.Run(context.Background(), testActionContext("image"), domain.ImageJobData{
		NoteID:    noteID,
		ImportID:  importID,
		ImagePath: src,
		OutputDir: outDir,
		Filename:  "plate.jpg",
	}, deps)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if out.StorageURL != "" || out.StorageOriginalURL != "" {
		t.Fatalf("storage URLs set without a store: %+v", out)
	}

	rec, err := deps.Images.GetByImportID(context.Background(), importID)
	if err != nil || rec == nil {
		t.Fatalf("read back: %v %v", rec, err)
	}
	if rec.ProcessingStatus != domain.ImageStatusCompleted {
		t.Fatalf("status = %s, want completed", rec.ProcessingStatus)
	}
	for name, url := range map[string]string{
		"original":  rec.OriginalImageURL,
		"thumbnail": rec.ThumbnailImageURL,
		"crop3x2":   rec.Crop3x2ImageURL,
		"crop4x3":   rec.Crop4x3ImageURL,
		"crop16x9":  rec.Crop16x9ImageURL,
	} {
		if !strings.HasPrefix(url, "http://localhost:4200/images/") {
			t.Fatalf("%s url = %q, want local /images/ fallback", name, url)
		}
	}
	if !deps.Tracker.IsComplete(noteID, services.CategoryImage) {
		t.Fatal("tracker did not complete the image category")
	}
}

func TestImageCompletedStatusMarksTracker(t *testing.T) {
	deps, _ := newTestDeps(t, newFakeStore())
	noteID := uuid.NewString()
	deps.Tracker.Register(noteID, services.CategoryImage, 1)
	deps.Tracker.BindImport(noteID, "imp-status")

	if _, err := deps.Images.UpsertPending(context.Background(), &domain.Image{ImportID: "imp-status"}); err != nil {
		t.Fatalf("seed record: %v", err)
	}

	d := domain.ImageJobData{NoteID: noteID, ImportID: "imp-status"}
	if _, err := (ImageCompletedStatus{}).Execute(context.Background(), testActionContext("image"), d, deps); err != nil {
		t.Fatalf("status action: %v", err)
	}
	if !deps.Tracker.IsComplete(noteID, services.CategoryImage) {
		t.Fatal("status action did not mark the image category")
	}
}
