package app

import (
	"github.com/platebook/importer-backend/internal/logger"
	"github.com/platebook/importer-backend/internal/services"
	"github.com/platebook/importer-backend/internal/ws"
)

type Services struct {
	Parser      services.NoteParser
	Rules       services.IngredientRules
	Media       services.MediaProcessor
	Broadcaster services.StatusBroadcaster
	Tracker     services.CompletionTracker
}

func wireServices(log *logger.Logger, hub *ws.Hub) Services {
	log.Info("Wiring services...")
	broadcaster := services.NewStatusBroadcaster(log, hub)
	return Services{
		Parser:      services.NewNoteParser(log),
		Rules:       services.NewIngredientRules(),
		Media:       services.NewMediaProcessor(log),
		Broadcaster: broadcaster,
		Tracker:     services.NewCompletionTracker(log, broadcaster),
	}
}
