package notespipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/workers"
)

// localImage is one image materialized to disk and ready for the image queue.
type localImage struct {
	importID string
	path     string
	filename string
	outDir   string
}

/*
FanOutNote is the hand-off from the notes pipeline to the rest of the system.
It materializes every image the parser found (downloading remote URLs and
decoding embedded data URIs), registers the expected job counts with the
completion tracker, writes pending image records, and enqueues one job per
ingredient line, instruction step, image, and source URL.

Ordering is deliberate: counts are registered before any job is enqueued so a
fast worker can never report completion into an unregistered category, and
pending image records exist before an image worker could look for them.

Image materialization is best-effort per image. A note whose photo fails to
download still imports; the count registered with the tracker reflects only
the images that actually made it to disk. A note with no usable image gets a
generated placeholder tile when the placeholder service is configured.
*/
type FanOutNote struct{}

func (FanOutNote) Name() string { return workers.ActionFanOutNote }

func (FanOutNote) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.NoteID == "" {
		return errs.MissingField("noteId")
	}
	if s.Parsed == nil {
		return errs.MissingField("parsed")
	}
	return nil
}

func (FanOutNote) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	for _, name := range []string{queue.QueueImage, queue.QueueIngredients, queue.QueueInstruction, queue.QueueSource} {
		if deps.Queue(name) == nil {
			return s, errs.New(errs.TypeWorker, errs.SeverityCritical,
				fmt.Sprintf("queue %q is not wired", name))
		}
	}

	scratch := filepath.Join(deps.WorkDir, s.ImportID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return s, errs.Wrap(err, errs.TypeWorker, errs.SeverityHigh, "create scratch dir")
	}

	images := materializeAll(ctx, ac, s, deps, scratch)
	if len(images) == 0 && deps.Placeholder != nil {
		if img, err := generatePlaceholder(s, deps, scratch); err != nil {
			deps.Log.Warn("Placeholder generation failed",
				"job_id", ac.JobID, "import_id", s.ImportID, "error", err)
		} else {
			images = append(images, img)
		}
	}

	// Counts first: no downstream job may finish before its category exists.
	deps.Tracker.BindImport(s.NoteID, s.ImportID)
	deps.Tracker.Register(s.NoteID, services.CategoryImage, len(images))
	deps.Tracker.Register(s.NoteID, services.CategoryIngredient, len(s.Parsed.IngredientLines))
	deps.Tracker.Register(s.NoteID, services.CategoryInstruction, len(s.Parsed.InstructionLines))

	for _, img := range images {
		if _, err := deps.Images.UpsertPending(ctx, &domain.Image{
			ImportID:         img.importID,
			ProcessingStatus: domain.ImageStatusPending,
		}); err != nil {
			return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "seed image record")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, img := range images {
		payload := domain.ImageJobData{
			NoteID:    s.NoteID,
			ImportID:  img.importID,
			ImagePath: img.path,
			OutputDir: img.outDir,
			Filename:  img.filename,
		}
		g.Go(func() error {
			_, err := deps.Queue(queue.QueueImage).Push(gctx, payload, nil)
			return err
		})
	}
	for i, line := range s.Parsed.IngredientLines {
		payload := domain.IngredientJobData{
			NoteID: s.NoteID, ImportID: s.ImportID, LineIndex: i, Raw: line,
		}
		g.Go(func() error {
			_, err := deps.Queue(queue.QueueIngredients).Push(gctx, payload, nil)
			return err
		})
	}
	for i, line := range s.Parsed.InstructionLines {
		payload := domain.InstructionJobData{
			NoteID: s.NoteID, ImportID: s.ImportID, StepIndex: i, Text: line,
		}
		g.Go(func() error {
			_, err := deps.Queue(queue.QueueInstruction).Push(gctx, payload, nil)
			return err
		})
	}
	if s.SourceURL != "" {
		payload := domain.SourceJobData{NoteID: s.NoteID, ImportID: s.ImportID, URL: s.SourceURL}
		g.Go(func() error {
			_, err := deps.Queue(queue.QueueSource).Push(gctx, payload, nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return s, errs.Wrap(err, errs.TypeRedis, errs.SeverityHigh, "enqueue downstream jobs")
	}

	_ = deps.Broadcaster.Emit(domain.StatusEvent{
		ImportID:    s.ImportID,
		NoteID:      s.NoteID,
		Status:      domain.EventProcessing,
		Message: fmt.Sprintf("Queued %d images, %d ingredients, %d instructions",
			len(images), len(s.Parsed.IngredientLines), len(s.Parsed.InstructionLines)),
		Context:     domain.EventContextImport,
		IndentLevel: 1,
	})

	deps.Log.Info("Note fanned out",
		"job_id", ac.JobID,
		"note_id", s.NoteID,
		"images", len(images),
		"ingredients", len(s.Parsed.IngredientLines),
		"instructions", len(s.Parsed.InstructionLines),
		"has_source", s.SourceURL != "",
	)
	return s, nil
}

func materializeAll(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps, scratch string) []localImage {
	images := make([]localImage, 0, len(s.Parsed.ImageURLs))
	for i, ref := range s.Parsed.ImageURLs {
		importID := fmt.Sprintf("%s-img-%d", s.ImportID, i)
		outDir := filepath.Join(scratch, importID)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			deps.Log.Warn("Could not create image scratch dir",
				"job_id", ac.JobID, "import_id", importID, "error", err)
			continue
		}
		path, err := materializeImage(ctx, scratch, deps.ImageBaseURL, importID, ref)
		if err != nil {
			deps.Log.Warn("Skipping image that could not be materialized",
				"job_id", ac.JobID, "import_id", importID, "error", err)
			_ = os.Remove(outDir)
			continue
		}
		images = append(images, localImage{
			importID: importID,
			path:     path,
			filename: filepath.Base(path),
			outDir:   outDir,
		})
	}
	return images
}

func generatePlaceholder(s State, deps *workers.Deps, scratch string) (localImage, error) {
	importID := s.ImportID + "-img-placeholder"
	outDir := filepath.Join(scratch, importID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return localImage{}, err
	}
	path, err := deps.Placeholder.Generate(scratch, importID, s.Parsed.Title)
	if err != nil {
		return localImage{}, err
	}
	return localImage{
		importID: importID,
		path:     path,
		filename: filepath.Base(path),
		outDir:   outDir,
	}, nil
}
