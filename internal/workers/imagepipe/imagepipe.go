// Package imagepipe contains the image worker's action pipeline: upload the
// source file, render derivatives, upload them, persist the record, clean the
// scratch directory, and report completion.
package imagepipe

import (
	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/errs"
)

// owner is the identifier derivative keys are grouped under: the note when
// the image belongs to one, the import otherwise.
func owner(d domain.ImageJobData) string {
	if d.NoteID != "" {
		return d.NoteID
	}
	return d.ImportID
}

func validateBase(d domain.ImageJobData) error {
	if d.ImportID == "" {
		return errs.MissingField("importId")
	}
	if d.ImagePath == "" {
		return errs.MissingField("imagePath")
	}
	return nil
}
