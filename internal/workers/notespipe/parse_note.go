package notespipe

import (
	"context"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/workers"
)

// ParseNote lifts recipe structure out of the note HTML. Parse failures are
// terminal: the HTML in the payload never changes between attempts.
type ParseNote struct{}

func (ParseNote) Name() string { return workers.ActionParseNote }

func (ParseNote) ValidateInput(s State) error {
	if err := validateBase(s); err != nil {
		return err
	}
	if s.HTML == "" {
		return errs.MissingField("html")
	}
	return nil
}

func (ParseNote) Execute(ctx context.Context, ac *workers.ActionContext, s State, deps *workers.Deps) (State, error) {
	parsed, err := deps.Parser.Parse(s.HTML)
	if err != nil {
		return s, err
	}
	s.Parsed = parsed
	deps.Log.Debug("Note parsed",
		"job_id", ac.JobID,
		"import_id", s.ImportID,
		"title", parsed.Title,
		"ingredients", len(parsed.IngredientLines),
		"instructions", len(parsed.InstructionLines),
		"images", len(parsed.ImageURLs),
	)
	return s, nil
}
