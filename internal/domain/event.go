package domain

// EventStatus is the closed status set for broadcast events.
type EventStatus string

const (
	EventProcessing EventStatus = "PROCESSING"
	EventCompleted  EventStatus = "COMPLETED"
	EventFailed     EventStatus = "FAILED"
)

// Broadcast event contexts seen by the ingestion UI.
const (
	EventContextImport          = "import"
	EventContextImageProcessing = "image_processing"
	EventContextIngredients     = "ingredients"
	EventContextInstructions    = "instructions"
	EventContextCategorization  = "categorization"
	EventContextSource          = "source"
)

// StatusEvent is the wire shape pushed to the ingestion websocket channel.
type StatusEvent struct {
	ImportID    string         `json:"importId"`
	NoteID      string         `json:"noteId,omitempty"`
	Status      EventStatus    `json:"status"`
	Message     string         `json:"message"`
	Context     string         `json:"context"`
	IndentLevel int            `json:"indentLevel"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
