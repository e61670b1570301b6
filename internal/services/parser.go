package services

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/platebook/importer-backend/internal/errs"
	"github.com/platebook/importer-backend/internal/logger"
)

// ParsedNote is the structured content lifted out of one note's HTML.
type ParsedNote struct {
	Title            string
	IngredientLines  []string
	InstructionLines []string
	ImageURLs        []string
}

// NoteParser extracts recipe structure from exported note HTML. The export
// format is loose, so extraction is heuristic: section headings are matched
// by name and list items under them are collected in document order.
type NoteParser interface {
	Parse(html string) (*ParsedNote, error)
}

type noteParser struct {
	log *logger.Logger
}

func NewNoteParser(log *logger.Logger) NoteParser {
	return &noteParser{log: log.With("service", "NoteParser")}
}

func (p *noteParser) Parse(html string) (*ParsedNote, error) {
	if strings.TrimSpace(html) == "" {
		return nil, errs.MissingField("html")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errs.FatalWrap(err, errs.TypeParsing, "parse note html")
	}

	parsed := &ParsedNote{
		Title:            extractTitle(doc),
		IngredientLines:  extractSectionLines(doc, isIngredientHeading),
		InstructionLines: extractSectionLines(doc, isInstructionHeading),
		ImageURLs:        extractImageURLs(doc),
	}

	p.log.Debug("Note parsed",
		"title", parsed.Title,
		"ingredients", len(parsed.IngredientLines),
		"instructions", len(parsed.InstructionLines),
		"images", len(parsed.ImageURLs),
	)
	return parsed, nil
}

func extractTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func isIngredientHeading(text string) bool {
	return strings.Contains(strings.ToLower(text), "ingredient")
}

func isInstructionHeading(text string) bool {
	t := strings.ToLower(text)
	for _, kw := range []string{"instruction", "direction", "method", "steps", "preparation"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// extractSectionLines finds a heading matched by headingMatch and returns the
// text of the list items in the first list that follows it.
func extractSectionLines(doc *goquery.Document, headingMatch func(string) bool) []string {
	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, b, strong").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
		if !headingMatch(heading.Text()) {
			return true
		}
		list := followingList(heading)
		if list == nil {
			return true
		}
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := strings.TrimSpace(li.Text()); text != "" {
				lines = append(lines, text)
			}
		})
		return len(lines) == 0
	})
	return lines
}

// followingList walks forward from the heading to the next ul/ol, looking
// through siblings and then the parents' siblings. Note exports often wrap
// headings in div layers.
func followingList(heading *goquery.Selection) *goquery.Selection {
	node := heading
	for depth := 0; depth < 3 && node.Length() > 0; depth++ {
		for sib := node.Next(); sib.Length() > 0; sib = sib.Next() {
			if sib.Is("ul, ol") {
				return sib
			}
			if nested := sib.Find("ul, ol").First(); nested.Length() > 0 {
				return nested
			}
		}
		node = node.Parent()
	}
	return nil
}

func extractImageURLs(doc *goquery.Document) []string {
	var urls []string
	seen := make(map[string]struct{})
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})
	return urls
}
