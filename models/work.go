// Package models defines data structures for the scraper.
package models

import (
	"encoding/json"
	"fmt"
)

// UnknownFandom stands in for a work that carries no fandom tags.
const UnknownFandom = "Unknown"

// Credentials are passed through to the login form and never stored.
type Credentials struct {
	Username string
	Password string
}

// WorkRecord is one reading-history entry after field extraction.
type WorkRecord struct {
	Title        string
	Fandoms      []string
	Pairings     []string
	Rating       string // empty when the entry has no rating metadata
	WordCount    int
	RevisitCount int
}

// TallyEntry is a single (name, count) pair of a top-N projection.
type TallyEntry struct {
	Name  string
	Count int
}

// MarshalJSON encodes the entry as a two element [name, count] array.
func (e TallyEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Name, e.Count})
}

// UnmarshalJSON accepts the [name, count] array form.
func (e *TallyEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("tally entry: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Name); err != nil {
		return fmt.Errorf("tally entry name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Count); err != nil {
		return fmt.Errorf("tally entry count: %w", err)
	}
	return nil
}

// ScrapeResult is the final summary of one scrape.
type ScrapeResult struct {
	TotalBooks        int          `json:"total_books"`
	TotalWords        int          `json:"total_words"`
	TopBooks          []TallyEntry `json:"top_books"`
	TopShips          []TallyEntry `json:"top_ships"`
	TopFandoms        []TallyEntry `json:"top_fandoms"`
	TopRatings        []TallyEntry `json:"top_ratings"`
	PagesScraped      int          `json:"pages_scraped"`
	ProgressEstimated bool         `json:"progress_estimated"`
}

// ProgressState is what the polling endpoint returns for a run.
type ProgressState struct {
	Progress int           `json:"progress"`
	Done     bool          `json:"done"`
	Results  *ScrapeResult `json:"results"`
	Error    *string       `json:"error"`
}
