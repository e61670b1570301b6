package workers

import (
	"context"
	"time"
)

/*
Action names, grouped by queue. The sets are closed: a worker's pipeline is
built from these names via its factory, and job logs, metrics, and trace spans
all carry them verbatim.
*/
const (
	// notes queue
	ActionParseNote  = "parse_note"
	ActionSaveNote   = "save_note"
	ActionFanOutNote = "fan_out_note"

	// ingredients queue
	ActionParseIngredient           = "parse_ingredient"
	ActionSaveIngredient            = "save_ingredient"
	ActionIngredientCompletedStatus = "ingredient_completed_status"

	// instruction queue
	ActionFormatInstruction          = "format_instruction"
	ActionSaveInstruction            = "save_instruction"
	ActionInstructionCompletedStatus = "instruction_completed_status"

	// image queue
	ActionUploadOriginal       = "upload_original"
	ActionProcessImage         = "process_image"
	ActionUploadProcessed      = "upload_processed"
	ActionSaveImage            = "save_image"
	ActionCleanupLocalFiles    = "cleanup_local_files"
	ActionImageCompletedStatus = "image_completed_status"
	ActionCheckImageCompletion = "check_image_completion"

	// categorization queue
	ActionCategorizeNote = "categorize_note"
	ActionSaveCategories = "save_categories"

	// source queue
	ActionSaveSource = "save_source"
)

/*
ActionContext carries the identity of the job invocation an action is running
inside. It is read-only for actions: the worker builds one per job and every
action in the pipeline sees the same values.
*/
type ActionContext struct {
	JobID      string
	QueueName  string
	WorkerName string
	Attempt    int
	StartedAt  time.Time
}

/*
Action is one step of a worker's pipeline, typed by the queue's payload.
Execute receives the current payload value and returns the (possibly extended)
value for the next action; actions never mutate the input in place. Returning
an error aborts the pipeline and hands the job back to the queue's retry
policy.
*/
type Action[T any] interface {
	Name() string
	ValidateInput(data T) error
	Execute(ctx context.Context, ac *ActionContext, data T, deps *Deps) (T, error)
}
