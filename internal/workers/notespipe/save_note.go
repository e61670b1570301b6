package notespipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/workers"
)

// SaveNote persists the note record and pins its ID onto the state. A retried
// job finds the existing record by import ID instead of inserting a second
// row, so NoteID is stable across attempts.
type SaveNote struct{}

func (SaveNote) Name() string { return workers.ActionSaveNote }

func (SaveNote) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.Parsed == nil {
		return errs.MissingField("parsed")
	}
	return nil
}

func (SaveNote) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	existing, err := deps.Notes.GetByImportID(ctx, s.ImportID)
	if err != nil {
		return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "look up note")
	}

	if existing != nil {
		s.NoteID = existing.ID.String()
	} else {
		note := &domain.Note{
			ImportID:  s.ImportID,
			Title:     s.Parsed.Title,
			SourceURL: s.SourceURL,
			HTML:      s.HTML,
			Status:    domain.NoteStatusProcessing,
		}
		if err := deps.Notes.Create(ctx, note); err != nil {
			return s, errs.Wrap(err, errs.TypeDatabase, errs.SeverityHigh, "create note")
		}
		s.NoteID = note.ID.String()
	}

	_ = deps.Broadcaster.Emit(domain.StatusEvent{
		ImportID:    s.ImportID,
		NoteID:      s.NoteID,
		Status:      domain.EventProcessing,
		Message:     "Importing \"" + s.Parsed.Title + "\"",
		Context:     domain.EventContextImport,
		IndentLevel: 0,
	})

	deps.Log.Info("Note saved",
		"job_id", ac.JobID, "import_id", s.ImportID, "note_id", s.NoteID)
	return s, nil
}
