// Package notespipe contains the notes worker's action pipeline: parse the
// exported HTML, persist the note, then fan the work out to the downstream
// queues.
package notespipe

import (
	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/services"
)

// State is the value threaded through the notes pipeline. The job payload
// decodes into the embedded NoteJobData; NoteID and Parsed are filled in by
// the actions as the pipeline advances.
type State struct {
	domain.NoteJobData

	NoteID string               `json:"noteId,omitempty"`
	Parsed *services.ParsedNote `json:"-"`
}

func validateBase(s State) error {
	if s.ImportID == "" {
		return errs.MissingField("importId")
	}
	return nil
}
