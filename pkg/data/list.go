package data

import (
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for list parsing
var (
	ErrListFormat = errors.New("list format error")
	ErrEmptyList  = errors.New("list contains no rankable entries")
)

// ListKind is the media type of an imported list
type ListKind string

// Supported list kinds
const (
	KindAnime   ListKind = "anime"
	KindManga   ListKind = "manga"
	KindGeneric ListKind = "generic"
)

// ListFormat is the file format a list was imported from
type ListFormat string

// Supported list formats
const (
	FormatMAL ListFormat = "mal"
	FormatCSV ListFormat = "csv"
)

// MyAnimeList export element names
const (
	malExportTypeManga = 2

	malScoreElement  = "my_score"
	malUpdateElement = "update_on_import"
)

// ListEntry is a single rankable entry
type ListEntry struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	Status   string  `json:"status,omitempty"`
	Score    float64 `json:"score,omitempty"` // existing 1-10 score, 0 when unrated
	ImageURL string  `json:"imageUrl,omitempty"`
}

// List is an imported list together with its raw source for later rewriting
type List struct {
	Kind     ListKind    `json:"kind"`
	Format   ListFormat  `json:"format"`
	Entries  []ListEntry `json:"entries"`
	Skipped  int         `json:"skipped"` // entries filtered out by status or invalid id
	Original []byte      `json:"-"`
}

// Seeds converts the entries into ranking engine seeds
func (l *List) Seeds() []ranking.ItemSeed {
	seeds := make([]ranking.ItemSeed, len(l.Entries))
	for i, entry := range l.Entries {
		seeds[i] = ranking.ItemSeed{ID: entry.ID, Title: entry.Title, ImageURL: entry.ImageURL}
		if entry.Score > 0 {
			prior := entry.Score
			seeds[i].PriorRating = &prior
		}
	}
	return seeds
}

// RatedShare returns the fraction of entries carrying an existing score
func (l *List) RatedShare() float64 {
	if len(l.Entries) == 0 {
		return 0
	}
	rated := 0
	for _, entry := range l.Entries {
		if entry.Score > 0 {
			rated++
		}
	}
	return float64(rated) / float64(len(l.Entries))
}

// LoadList reads and parses a list file
func LoadList(filename string, config ImportConfig) (*List, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open list file %s: %v", ErrListFormat, filename, err)
	}
	return ParseList(data, config)
}

// ParseList parses data according to config.Format, sniffing the content when
// the format is "auto"
func ParseList(data []byte, config ImportConfig) (*List, error) {
	format := config.Format
	if format == "" || format == "auto" {
		format = string(FormatCSV)
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
			format = string(FormatMAL)
		}
	}

	var (
		list *List
		err  error
	)
	switch ListFormat(format) {
	case FormatMAL:
		list, err = ParseMALXML(data, config)
	case FormatCSV:
		list, err = ParseCSV(bytes.NewReader(data), config)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrListFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if len(list.Entries) == 0 {
		return nil, fmt.Errorf("%w: %d entries skipped", ErrEmptyList, list.Skipped)
	}
	return list, nil
}

// malDocument mirrors the parts of a MyAnimeList export the ranker needs
type malDocument struct {
	XMLName xml.Name   `xml:"myanimelist"`
	Info    malInfo    `xml:"myinfo"`
	Anime   []malEntry `xml:"anime"`
	Manga   []malEntry `xml:"manga"`
}

type malInfo struct {
	ExportType int `xml:"user_export_type"`
}

type malEntry struct {
	AnimeID    string `xml:"series_animedb_id"`
	AnimeTitle string `xml:"series_title"`
	MangaID    string `xml:"manga_mangadb_id"`
	MangaTitle string `xml:"manga_title"`
	Score      string `xml:"my_score"`
	Status     string `xml:"my_status"`
}

// ParseMALXML parses a MyAnimeList XML export. Entries whose status is not
// selected in config, or whose id is not positive, are skipped.
func ParseMALXML(data []byte, config ImportConfig) (*List, error) {
	var doc malDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid MyAnimeList XML: %v", ErrListFormat, err)
	}

	list := &List{Kind: KindAnime, Format: FormatMAL, Original: data}
	entries, statuses := doc.Anime, config.AnimeStatuses
	if doc.Info.ExportType == malExportTypeManga {
		list.Kind = KindManga
		entries, statuses = doc.Manga, config.MangaStatuses
	}

	seen := make(map[int]bool, len(entries))
	for _, raw := range entries {
		idText, title := raw.AnimeID, raw.AnimeTitle
		if list.Kind == KindManga {
			idText, title = raw.MangaID, raw.MangaTitle
		}

		id, err := strconv.Atoi(strings.TrimSpace(idText))
		status := strings.TrimSpace(raw.Status)
		if err != nil || id <= 0 || seen[id] || !contains(statuses, status) {
			list.Skipped++
			continue
		}
		seen[id] = true

		title = strings.TrimSpace(title)
		if title == "" {
			title = "Unknown"
		}

		entry := ListEntry{ID: id, Title: title, Status: status}
		if score, err := strconv.Atoi(strings.TrimSpace(raw.Score)); err == nil && score > 0 {
			entry.Score = float64(score)
		}
		list.Entries = append(list.Entries, entry)
	}

	return list, nil
}

// RewriteMALXML returns the original export with my_score replaced by the
// rounded rating of every rated entry and update_on_import set so that
// MyAnimeList applies the new score. Other content is preserved.
func RewriteMALXML(original []byte, kind ListKind, ratings map[int]float64) ([]byte, error) {
	entryElement, idElement := "anime", "series_animedb_id"
	if kind == KindManga {
		entryElement, idElement = "manga", "manga_mangadb_id"
	}

	decoder := xml.NewDecoder(bytes.NewReader(original))
	var out bytes.Buffer
	encoder := xml.NewEncoder(&out)

	var entry []xml.Token // buffered tokens of the current entry, nil outside entries
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid MyAnimeList XML: %v", ErrListFormat, err)
		}
		tok = xml.CopyToken(tok)

		if start, ok := tok.(xml.StartElement); ok && entry == nil && start.Name.Local == entryElement {
			entry = []xml.Token{tok}
			continue
		}
		if entry != nil {
			entry = append(entry, tok)
			if end, ok := tok.(xml.EndElement); ok && end.Name.Local == entryElement {
				if err := encodeTokens(encoder, patchMALEntry(entry, idElement, ratings)); err != nil {
					return nil, err
				}
				entry = nil
			}
			continue
		}
		if err := encoder.EncodeToken(tok); err != nil {
			return nil, fmt.Errorf("%w: cannot write XML: %v", ErrListFormat, err)
		}
	}

	if entry != nil {
		return nil, fmt.Errorf("%w: unterminated %s element", ErrListFormat, entryElement)
	}
	if err := encoder.Flush(); err != nil {
		return nil, fmt.Errorf("%w: cannot write XML: %v", ErrListFormat, err)
	}
	return out.Bytes(), nil
}

// patchMALEntry rewrites the score fields of one buffered entry
func patchMALEntry(tokens []xml.Token, idElement string, ratings map[int]float64) []xml.Token {
	id, ok := malEntryID(tokens, idElement)
	if !ok {
		return tokens
	}
	rating, ok := ratings[id]
	if !ok || rating <= 0 {
		return tokens
	}

	replacements := map[string]string{
		malScoreElement:  strconv.Itoa(int(math.Round(rating))),
		malUpdateElement: "1",
	}

	patched := make([]xml.Token, 0, len(tokens))
	skipping := ""
	for _, tok := range tokens {
		if skipping != "" {
			if end, ok := tok.(xml.EndElement); ok && end.Name.Local == skipping {
				patched = append(patched, tok)
				skipping = ""
			}
			continue
		}
		patched = append(patched, tok)
		if start, ok := tok.(xml.StartElement); ok {
			if value, replace := replacements[start.Name.Local]; replace {
				patched = append(patched, xml.CharData(value))
				skipping = start.Name.Local
			}
		}
	}
	return patched
}

// malEntryID extracts the numeric id of a buffered entry
func malEntryID(tokens []xml.Token, idElement string) (int, bool) {
	for i, tok := range tokens {
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != idElement || i+1 >= len(tokens) {
			continue
		}
		text, ok := tokens[i+1].(xml.CharData)
		if !ok {
			return 0, false
		}
		id, err := strconv.Atoi(strings.TrimSpace(string(text)))
		return id, err == nil
	}
	return 0, false
}

func encodeTokens(encoder *xml.Encoder, tokens []xml.Token) error {
	for _, tok := range tokens {
		if err := encoder.EncodeToken(tok); err != nil {
			return fmt.Errorf("%w: cannot write XML: %v", ErrListFormat, err)
		}
	}
	return nil
}

// CSV column names, matched case-insensitively
const (
	csvIDColumn     = "id"
	csvTitleColumn  = "title"
	csvScoreColumn  = "score"
	csvStatusColumn = "status"
	csvImageColumn  = "image"
)

// ParseCSV parses a headed CSV list with id and title columns and optional
// score, status and image columns
func ParseCSV(reader io.Reader, config ImportConfig) (*List, error) {
	csvReader := csv.NewReader(reader)
	if config.Delimiter != "" {
		csvReader.Comma = rune(config.Delimiter[0])
	}
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", ErrListFormat, err)
	}
	if len(records) == 0 {
		return &List{Kind: KindGeneric, Format: FormatCSV}, nil
	}

	columns := make(map[string]int)
	for i, header := range records[0] {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header, "\ufeff")))] = i
	}
	idCol, okID := columns[csvIDColumn]
	titleCol, okTitle := columns[csvTitleColumn]
	if !okID || !okTitle {
		return nil, fmt.Errorf("%w: CSV header must contain %q and %q columns", ErrListFormat, csvIDColumn, csvTitleColumn)
	}

	field := func(row []string, name string) string {
		if col, ok := columns[name]; ok && col < len(row) {
			return strings.TrimSpace(row[col])
		}
		return ""
	}

	list := &List{Kind: KindGeneric, Format: FormatCSV}
	seen := make(map[int]bool)
	for _, row := range records[1:] {
		if isEmptyRow(row) {
			continue
		}
		if idCol >= len(row) || titleCol >= len(row) {
			list.Skipped++
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[idCol]))
		title := strings.TrimSpace(row[titleCol])
		if err != nil || id <= 0 || title == "" || seen[id] {
			list.Skipped++
			continue
		}
		seen[id] = true

		entry := ListEntry{
			ID:       id,
			Title:    title,
			Status:   field(row, csvStatusColumn),
			ImageURL: field(row, csvImageColumn),
		}
		if score, err := strconv.ParseFloat(field(row, csvScoreColumn), 64); err == nil && score > 0 {
			entry.Score = math.Min(score, ranking.MaxDisplayRating)
		}
		list.Entries = append(list.Entries, entry)
	}

	return list, nil
}

// isEmptyRow reports whether every field of row is blank
func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
