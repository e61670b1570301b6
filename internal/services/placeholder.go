package services

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/platebook/importer-backend/internal/logger"
)

// PlaceholderService renders a letter-tile image for notes that arrive with
// no usable photo. The tile is written to local disk and then fed into the
// image pipeline like any downloaded photo, so placeholder notes get the full
// derivative set and a stored image record.
type PlaceholderService interface {
	// Generate writes a PNG tile for the note title into dir and returns the
	// file path.
	Generate(dir, importID, title string) (string, error)
}

type placeholderService struct {
	log      *logger.Logger
	fontFace font.Face
	palette  []color.NRGBA
}

// Tile background palette. Color choice is hashed from the title so the same
// note renders the same tile on retry.
var placeholderPalette = []color.NRGBA{
	{R: 0xE5, G: 0x73, B: 0x73, A: 0xFF},
	{R: 0xF0, G: 0x9A, B: 0x56, A: 0xFF},
	{R: 0x7C, G: 0xB3, B: 0x42, A: 0xFF},
	{R: 0x4D, G: 0xB6, B: 0xAC, A: 0xFF},
	{R: 0x64, G: 0xB5, B: 0xF6, A: 0xFF},
	{R: 0x95, G: 0x75, B: 0xCD, A: 0xFF},
	{R: 0xA1, G: 0x88, B: 0x7F, A: 0xFF},
}

// NewPlaceholderService loads the tile font from PLACEHOLDER_FONT. The
// service is optional: without the env var the importer runs fine and notes
// without images simply get no image record.
func NewPlaceholderService(log *logger.Logger) (PlaceholderService, error) {
	fontPath := strings.TrimSpace(os.Getenv("PLACEHOLDER_FONT"))
	if fontPath == "" {
		return nil, fmt.Errorf("env var PLACEHOLDER_FONT is empty")
	}
	serviceLog := log.With("service", "PlaceholderService")
	serviceLog.Info("Loading placeholder font", "font", fontPath)

	face, err := loadFontFace(fontPath, 320)
	if err != nil {
		return nil, fmt.Errorf("could not load placeholder font: %w", err)
	}
	return &placeholderService{
		log:      serviceLog,
		fontFace: face,
		palette:  placeholderPalette,
	}, nil
}

func (ps *placeholderService) Generate(dir, importID, title string) (string, error) {
	const size = 800

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dc := gg.NewContext(size, size)
	dc.SetColor(ps.pickColor(title))
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	letter := tileLetter(title)
	dc.SetFontFace(ps.fontFace)
	tw, th := dc.MeasureString(letter)
	cx, cy := float64(size)/2, float64(size)/2

	dc.SetColor(color.White)
	dc.DrawString(letter, cx-(tw/2), cy+(th/2)-10)

	path := filepath.Join(dir, fmt.Sprintf("%s-placeholder.png", importID))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}
	ps.log.Debug("Placeholder tile rendered", "import_id", importID, "path", path)
	return path, nil
}

func (ps *placeholderService) pickColor(title string) color.NRGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(title))))
	return ps.palette[h.Sum32()%uint32(len(ps.palette))]
}

// tileLetter picks the first letter or digit of the title, uppercased. Falls
// back to "?" for titles with no usable rune.
func tileLetter(title string) string {
	for _, r := range strings.TrimSpace(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return strings.ToUpper(string(r))
		}
	}
	return "?"
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
