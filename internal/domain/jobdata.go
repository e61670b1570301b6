package domain

// Job payloads, one type per queue. These are the values threaded through a
// worker's action pipeline; actions return a new value rather than mutating
// the one they received.

type NoteJobData struct {
	ImportID  string `json:"importId"`
	HTML      string `json:"html"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// ImageMetadata is the intrinsic metadata extracted during processing.
type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// ImageJobData flows through the image pipeline. Identity fields (NoteID,
// ImportID, ImageID) never change once set; ImageID is assigned exactly once
// by the persistence step. A derivative path is non-empty iff that derivative
// exists on disk; a storage URL is non-empty iff its upload succeeded.
type ImageJobData struct {
	NoteID   string `json:"noteId,omitempty"`
	ImportID string `json:"importId"`
	ImageID  string `json:"imageId,omitempty"`

	ImagePath string `json:"imagePath"`
	OutputDir string `json:"outputDir"`
	Filename  string `json:"filename"`

	OriginalPath  string `json:"originalPath,omitempty"`
	ThumbnailPath string `json:"thumbnailPath,omitempty"`
	Crop3x2Path   string `json:"crop3x2Path,omitempty"`
	Crop4x3Path   string `json:"crop4x3Path,omitempty"`
	Crop16x9Path  string `json:"crop16x9Path,omitempty"`

	OriginalSize  int64 `json:"originalSize,omitempty"`
	ThumbnailSize int64 `json:"thumbnailSize,omitempty"`
	Crop3x2Size   int64 `json:"crop3x2Size,omitempty"`
	Crop4x3Size   int64 `json:"crop4x3Size,omitempty"`
	Crop16x9Size  int64 `json:"crop16x9Size,omitempty"`

	Metadata *ImageMetadata `json:"metadata,omitempty"`

	// Upload of the untouched source file.
	StorageKey string `json:"storageKey,omitempty"`
	StorageURL string `json:"storageUrl,omitempty"`

	// Uploads of the five derivatives.
	StorageOriginalURL  string `json:"storageOriginalUrl,omitempty"`
	StorageThumbnailURL string `json:"storageThumbnailUrl,omitempty"`
	StorageCrop3x2URL   string `json:"storageCrop3x2Url,omitempty"`
	StorageCrop4x3URL   string `json:"storageCrop4x3Url,omitempty"`
	StorageCrop16x9URL  string `json:"storageCrop16x9Url,omitempty"`
}

type IngredientJobData struct {
	NoteID    string `json:"noteId"`
	ImportID  string `json:"importId"`
	LineIndex int    `json:"lineIndex"`
	Raw       string `json:"raw"`
}

type InstructionJobData struct {
	NoteID    string `json:"noteId"`
	ImportID  string `json:"importId"`
	StepIndex int    `json:"stepIndex"`
	Text      string `json:"text"`
}

type CategorizationJobData struct {
	NoteID   string `json:"noteId"`
	ImportID string `json:"importId"`
}

type SourceJobData struct {
	NoteID   string `json:"noteId"`
	ImportID string `json:"importId"`
	URL      string `json:"url"`
}
