package objstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Derivative names. They appear verbatim in object keys and local filenames,
// so the set is closed and the strings never change.
const (
	DerivativeOriginal  = "original"
	DerivativeThumbnail = "thumbnail"
	DerivativeCrop3x2   = "crop3x2"
	DerivativeCrop4x3   = "crop4x3"
	DerivativeCrop16x9  = "crop16x9"
)

// Derivatives returns the closed derivative set in processing order.
func Derivatives() []string {
	return []string{
		DerivativeOriginal,
		DerivativeThumbnail,
		DerivativeCrop3x2,
		DerivativeCrop4x3,
		DerivativeCrop16x9,
	}
}

// OriginalKey is the object key for an untouched source file:
// originals/{importId}/{filename}. The filename keeps its extension.
func OriginalKey(importID, filename string) string {
	return fmt.Sprintf("originals/%s/%s", importID, filepath.Base(filename))
}

// ProcessedKey is the object key for a derivative:
// processed/{importId}/{owner}-{derivative}{ext}. owner is the note ID when
// the image belongs to a saved note, the import ID otherwise. ext keeps the
// original file's extension, dot included.
func ProcessedKey(importID, owner, derivative, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("processed/%s/%s-%s%s", importID, owner, derivative, ext)
}
