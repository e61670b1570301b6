package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/queue"
	"github.com/platebook/importer-backend/internal/repos"
)

// ImportHandler accepts note exports and enqueues them for processing. The
// API is asynchronous: a 202 means the notes are queued, and progress flows
// over the websocket channel keyed by import ID.
type ImportHandler struct {
	log    *logger.Logger
	notesQ queue.Queue

	notes        repos.NoteRepo
	images       repos.ImageRepo
	ingredients  repos.IngredientRepo
	instructions repos.InstructionRepo
	sources      repos.SourceRepo
}

func NewImportHandler(
	log *logger.Logger,
	notesQ queue.Queue,
	notes repos.NoteRepo,
	images repos.ImageRepo,
	ingredients repos.IngredientRepo,
	instructions repos.InstructionRepo,
	sources repos.SourceRepo,
) *ImportHandler {
	return &ImportHandler{
		log:          log.With("handler", "ImportHandler"),
		notesQ:       notesQ,
		notes:        notes,
		images:       images,
		ingredients:  ingredients,
		instructions: instructions,
		sources:      sources,
	}
}

type importNoteRequest struct {
	HTML      string `json:"html" binding:"required"`
	SourceURL string `json:"sourceUrl"`
}

type importRequest struct {
	Notes []importNoteRequest `json:"notes" binding:"required,min=1,dive"`
}

type importAccepted struct {
	ImportID string `json:"importId"`
	JobID    string `json:"jobId"`
}

// POST /api/import
func (h *ImportHandler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	accepted := make([]importAccepted, 0, len(req.Notes))
	for _, note := range req.Notes {
		importID := uuid.NewString()
		jobID, err := h.notesQ.Push(c.Request.Context(), domain.NoteJobData{
			ImportID:  importID,
			HTML:      note.HTML,
			SourceURL: note.SourceURL,
		}, nil)
		if err != nil {
			h.log.Error("Failed to enqueue note", "import_id", importID, "error", err)
			RespondError(c, http.StatusServiceUnavailable, "enqueue_failed", err)
			return
		}
		accepted = append(accepted, importAccepted{ImportID: importID, JobID: jobID})
	}

	h.log.Info("Import accepted", "notes", len(accepted))
	c.JSON(http.StatusAccepted, gin.H{"imports": accepted})
}

// GET /api/import/:importId
func (h *ImportHandler) GetImport(c *gin.Context) {
	importID := c.Param("importId")

	note, err := h.notes.GetByImportID(c.Request.Context(), importID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	if note == nil {
		RespondError(c, http.StatusNotFound, "import_not_found", nil)
		return
	}

	ingredients, err := h.ingredients.ListByNoteID(c.Request.Context(), note.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	instructions, err := h.instructions.ListByNoteID(c.Request.Context(), note.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	source, err := h.sources.GetByNoteID(c.Request.Context(), note.ID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}

	RespondOK(c, gin.H{
		"note":         note,
		"ingredients":  ingredients,
		"instructions": instructions,
		"source":       source,
	})
}
