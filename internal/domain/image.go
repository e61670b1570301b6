package domain

import (
	"time"

	"github.com/google/uuid"
)

// Image processing status. pending is written at fan-out time, processing
// when the image worker picks the job up, completed/failed are terminal.
const (
	ImageStatusPending    = "pending"
	ImageStatusProcessing = "processing"
	ImageStatusCompleted  = "completed"
	ImageStatusFailed     = "failed"
)

// Image is the persisted record for one imported image and its derivatives.
// ImportID is the natural unique key; every write path upserts on it.
type Image struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID   *uuid.UUID `gorm:"type:uuid;column:note_id;index" json:"note_id,omitempty"`
	ImportID string     `gorm:"column:import_id;not null;uniqueIndex" json:"import_id"`

	OriginalImageURL  string `gorm:"column:original_image_url" json:"original_image_url,omitempty"`
	ThumbnailImageURL string `gorm:"column:thumbnail_image_url" json:"thumbnail_image_url,omitempty"`
	Crop3x2ImageURL   string `gorm:"column:crop3x2_image_url" json:"crop3x2_image_url,omitempty"`
	Crop4x3ImageURL   string `gorm:"column:crop4x3_image_url" json:"crop4x3_image_url,omitempty"`
	Crop16x9ImageURL  string `gorm:"column:crop16x9_image_url" json:"crop16x9_image_url,omitempty"`

	OriginalWidth  int    `gorm:"column:original_width" json:"original_width,omitempty"`
	OriginalHeight int    `gorm:"column:original_height" json:"original_height,omitempty"`
	OriginalSize   int64  `gorm:"column:original_size" json:"original_size,omitempty"`
	OriginalFormat string `gorm:"column:original_format" json:"original_format,omitempty"`

	ProcessingStatus string `gorm:"column:processing_status;not null;index" json:"processing_status"`
	ProcessingError  string `gorm:"column:processing_error" json:"processing_error,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Image) TableName() string { return "image" }
