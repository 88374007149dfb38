package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/ao3-wrapped/models"
)

// Selectors locate the fragments of a reading-history page.
type Selectors struct {
	Entry        string
	Title        string
	Visits       string
	Words        string
	Fandoms      string
	Relationship string
	RatingList   string
	Pagination   string
}

// DefaultSelectors returns the archive's reading-history markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Entry:        "li.reading.work.blurb.group",
		Title:        "h4 a",
		Visits:       "h4.viewed.heading",
		Words:        "dd.words",
		Fandoms:      "h5.fandoms a",
		Relationship: "ul.tags.commas li.relationships",
		RatingList:   "div.header.module ul",
		Pagination:   "ol.pagination li",
	}
}

var (
	nonDigits    = regexp.MustCompile(`[^\d]`)
	visitedTimes = regexp.MustCompile(`Visited\s+([\d,]+)\s+times`)
)

// ExtractNumber keeps only the digits of text, e.g. "1,234 words" -> 1234.
// Empty or digit-free input yields 0; values past the int range saturate.
func ExtractNumber(text string) int {
	digits := nonDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// ParseVisits reads the "Visited N times" counter. Anything else counts as one visit.
func ParseVisits(text string) int {
	match := visitedTimes.FindStringSubmatch(collapseSpace(text))
	if match == nil {
		return 1
	}
	n := ExtractNumber(match[1])
	if n < 1 {
		return 1
	}
	return n
}

// SplitPairings splits a relationship tag on commas into trimmed names.
func SplitPairings(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// ParseWork extracts a record from one listing entry. ok is false when the
// entry has no title and must be skipped.
func ParseWork(entry *goquery.Selection, sel Selectors) (*models.WorkRecord, bool) {
	title := strings.TrimSpace(entry.Find(sel.Title).First().Text())
	if title == "" {
		return nil, false
	}

	record := &models.WorkRecord{
		Title:        title,
		RevisitCount: 1,
	}

	if visits := entry.Find(sel.Visits).First(); visits.Length() > 0 {
		record.RevisitCount = ParseVisits(visits.Text())
	}

	record.WordCount = ExtractNumber(entry.Find(sel.Words).First().Text())

	entry.Find(sel.Fandoms).Each(func(_ int, s *goquery.Selection) {
		if fandom := strings.TrimSpace(s.Text()); fandom != "" {
			record.Fandoms = append(record.Fandoms, fandom)
		}
	})
	if len(record.Fandoms) == 0 {
		record.Fandoms = []string{models.UnknownFandom}
	}

	entry.Find(sel.Relationship).Each(func(_ int, s *goquery.Selection) {
		record.Pairings = append(record.Pairings, SplitPairings(s.Text())...)
	})

	if list := entry.Find(sel.RatingList).First(); list.Length() > 0 {
		record.Rating = strings.TrimSpace(list.Find("li").First().Text())
	}

	return record, true
}

// TotalPages returns the highest page number shown in the pagination
// control, or 0 when the page has none.
func TotalPages(doc *goquery.Selection, sel Selectors) int {
	total := 0
	doc.Find(sel.Pagination).Each(func(_ int, s *goquery.Selection) {
		if n := ExtractNumber(s.Text()); n > total {
			total = n
		}
	})
	return total
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
