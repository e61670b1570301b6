package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NoteStatusPending    = "pending"
	NoteStatusProcessing = "processing"
	NoteStatusCompleted  = "completed"
	NoteStatusFailed     = "failed"
)

type Note struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ImportID  string         `gorm:"column:import_id;not null;uniqueIndex" json:"import_id"`
	Title     string         `gorm:"column:title" json:"title"`
	SourceURL string         `gorm:"column:source_url" json:"source_url,omitempty"`
	HTML      string         `gorm:"column:html;type:text" json:"-"`
	Status    string         `gorm:"column:status;not null;index" json:"status"`
	Tags      datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Note) TableName() string { return "note" }

type Ingredient struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_ingredient_note_line" json:"note_id"`
	LineIndex int       `gorm:"column:line_index;not null;uniqueIndex:idx_ingredient_note_line" json:"line_index"`
	Raw       string    `gorm:"column:raw;not null" json:"raw"`
	Quantity  string    `gorm:"column:quantity" json:"quantity,omitempty"`
	Unit      string    `gorm:"column:unit" json:"unit,omitempty"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Ingredient) TableName() string { return "ingredient" }

type Instruction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_instruction_note_step" json:"note_id"`
	StepIndex int       `gorm:"column:step_index;not null;uniqueIndex:idx_instruction_note_step" json:"step_index"`
	Text      string    `gorm:"column:text;type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Instruction) TableName() string { return "instruction" }

type Source struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"note_id"`
	URL       string    `gorm:"column:url;not null" json:"url"`
	Domain    string    `gorm:"column:domain;index" json:"domain"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Source) TableName() string { return "source" }
