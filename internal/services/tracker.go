package services

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/platebook/importer-backend/internal/domain"
	"github.com/platebook/importer-backend/internal/logger"
)

// Completion categories. Fan-out registers expected counts per category and
// each downstream job marks its own slot done.
const (
	CategoryImage       = "image"
	CategoryIngredient  = "ingredient"
	CategoryInstruction = "instruction"
)

// noteCategories is the full set a note fans out into; the note itself is
// complete once every one of them has drained.
var noteCategories = []string{CategoryImage, CategoryIngredient, CategoryInstruction}

// CategoryDoneFunc runs once when a category reaches zero outstanding jobs.
// Invoked outside the tracker's locks, so it may enqueue follow-up work.
type CategoryDoneFunc func(noteID, importID, category string)

// NoteDoneFunc runs once when every category for a note has drained.
type NoteDoneFunc func(noteID, importID string)

// CompletionTracker counts outstanding jobs per (note, category) and fires a
// single terminal event when a category drains, plus one overall import
// event when the note's last category drains. Counts live in memory and are
// reaped at note completion: a process restart forgets them, which is
// acceptable because the import UI is only live while the importing process
// is.
type CompletionTracker interface {
	// Register declares the expected job count for a category. A zero total
	// completes the category immediately.
	Register(noteID, category string, total int)
	// BindImport associates the note with its originating import ID so
	// terminal events can reference it.
	BindImport(noteID, importID string)
	// MarkComplete records one finished job. Duplicate job IDs are ignored,
	// so retried jobs cannot double-count. Returns true when this call
	// completed the category.
	MarkComplete(noteID, category, jobID string) bool
	IsComplete(noteID, category string) bool
	// OnCategoryDone installs the follow-up hook. Must be called during
	// wiring, before workers start.
	OnCategoryDone(fn CategoryDoneFunc)
	// OnNoteDone installs the hook that fires when the last category for a
	// note drains. Same wiring-time contract as OnCategoryDone.
	OnNoteDone(fn NoteDoneFunc)
}

const trackerShards = 16

type counter struct {
	total     int
	done      int
	seen      map[string]struct{}
	completed bool
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter // noteID/category -> counter
	imports  map[string]string   // noteID -> importID
}

type completionTracker struct {
	log         *logger.Logger
	broadcaster StatusBroadcaster
	shards      [trackerShards]*shard

	hookMu     sync.RWMutex
	onDone     CategoryDoneFunc
	onNoteDone NoteDoneFunc
}

func NewCompletionTracker(log *logger.Logger, broadcaster StatusBroadcaster) CompletionTracker {
	t := &completionTracker{
		log:         log.With("service", "CompletionTracker"),
		broadcaster: broadcaster,
	}
	for i := range t.shards {
		t.shards[i] = &shard{
			counters: make(map[string]*counter),
			imports:  make(map[string]string),
		}
	}
	return t
}

func (t *completionTracker) shardFor(noteID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(noteID))
	return t.shards[h.Sum32()%trackerShards]
}

func counterKey(noteID, category string) string {
	return noteID + "/" + category
}

func (t *completionTracker) OnCategoryDone(fn CategoryDoneFunc) {
	t.hookMu.Lock()
	t.onDone = fn
	t.hookMu.Unlock()
}

func (t *completionTracker) OnNoteDone(fn NoteDoneFunc) {
	t.hookMu.Lock()
	t.onNoteDone = fn
	t.hookMu.Unlock()
}

func (t *completionTracker) Register(noteID, category string, total int) {
	if noteID == "" || total < 0 {
		return
	}
	s := t.shardFor(noteID)
	s.mu.Lock()
	key := counterKey(noteID, category)
	c, ok := s.counters[key]
	if !ok {
		c = &counter{seen: make(map[string]struct{})}
		s.counters[key] = c
	}
	c.total = total
	drained := !c.completed && c.done >= c.total
	if drained {
		c.completed = true
	}
	importID := s.imports[noteID]
	noteDone := drained && reapNoteIfDrained(s, noteID)
	s.mu.Unlock()

	t.log.Debug("Completion category registered",
		"note_id", noteID, "category", category, "total", total)
	if drained {
		t.fireCategoryDone(noteID, importID, category, total)
	}
	if noteDone {
		t.fireNoteDone(noteID, importID)
	}
}

func (t *completionTracker) BindImport(noteID, importID string) {
	if noteID == "" || importID == "" {
		return
	}
	s := t.shardFor(noteID)
	s.mu.Lock()
	s.imports[noteID] = importID
	s.mu.Unlock()
}

func (t *completionTracker) MarkComplete(noteID, category, jobID string) bool {
	if noteID == "" || jobID == "" {
		return false
	}
	s := t.shardFor(noteID)
	s.mu.Lock()
	key := counterKey(noteID, category)
	c, ok := s.counters[key]
	if !ok {
		// No registration for this category; a late or duplicate check.
		s.mu.Unlock()
		return false
	}
	if _, dup := c.seen[jobID]; dup {
		s.mu.Unlock()
		return false
	}
	c.seen[jobID] = struct{}{}
	c.done++
	finished := !c.completed && c.done >= c.total
	if finished {
		c.completed = true
	}
	total := c.total
	importID := s.imports[noteID]
	noteDone := finished && reapNoteIfDrained(s, noteID)
	s.mu.Unlock()

	if finished {
		t.fireCategoryDone(noteID, importID, category, total)
	}
	if noteDone {
		t.fireNoteDone(noteID, importID)
	}
	return finished
}

// reapNoteIfDrained checks, under the shard lock, whether every category for
// the note has drained; if so it deletes the note's counters and import
// binding. Counters live only until the note completes — late duplicate marks
// after that fall into the unregistered no-op path.
func reapNoteIfDrained(s *shard, noteID string) bool {
	for _, category := range noteCategories {
		c, ok := s.counters[counterKey(noteID, category)]
		if !ok || !c.completed {
			return false
		}
	}
	for _, category := range noteCategories {
		delete(s.counters, counterKey(noteID, category))
	}
	delete(s.imports, noteID)
	return true
}

func (t *completionTracker) IsComplete(noteID, category string) bool {
	s := t.shardFor(noteID)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey(noteID, category)]
	return ok && c.completed
}

func (t *completionTracker) fireCategoryDone(noteID, importID, category string, total int) {
	t.log.Info("Category complete",
		"note_id", noteID, "import_id", importID, "category", category, "total", total)

	if t.broadcaster != nil && importID != "" {
		_ = t.broadcaster.Emit(domain.StatusEvent{
			ImportID:    importID,
			NoteID:      noteID,
			Status:      domain.EventCompleted,
			Message:     fmt.Sprintf("All %d %s jobs complete", total, category),
			Context:     eventContextForCategory(category),
			IndentLevel: 1,
		})
	}

	t.hookMu.RLock()
	fn := t.onDone
	t.hookMu.RUnlock()
	if fn != nil {
		fn(noteID, importID, category)
	}
}

func (t *completionTracker) fireNoteDone(noteID, importID string) {
	t.log.Info("Note complete, all categories drained",
		"note_id", noteID, "import_id", importID)

	if t.broadcaster != nil && importID != "" {
		_ = t.broadcaster.Emit(domain.StatusEvent{
			ImportID:    importID,
			NoteID:      noteID,
			Status:      domain.EventCompleted,
			Message:     "Import complete",
			Context:     domain.EventContextImport,
			IndentLevel: 0,
		})
	}

	t.hookMu.RLock()
	fn := t.onNoteDone
	t.hookMu.RUnlock()
	if fn != nil {
		fn(noteID, importID)
	}
}

func eventContextForCategory(category string) string {
	switch category {
	case CategoryImage:
		return domain.EventContextImageProcessing
	case CategoryIngredient:
		return domain.EventContextIngredients
	case CategoryInstruction:
		return domain.EventContextInstructions
	default:
		return domain.EventContextImport
	}
}
