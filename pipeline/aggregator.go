// Package pipeline folds parsed works into summary statistics and writes
// the final result to disk.
package pipeline

import (
	"sort"

	"github.com/aluiziolira/ao3-wrapped/models"
)

// Tally is a counter that remembers the order in which keys first appeared.
type Tally struct {
	index   map[string]int
	entries []models.TallyEntry
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{index: make(map[string]int)}
}

// Add increments key by n.
func (t *Tally) Add(key string, n int) {
	if i, ok := t.index[key]; ok {
		t.entries[i].Count += n
		return
	}
	t.index[key] = len(t.entries)
	t.entries = append(t.entries, models.TallyEntry{Name: key, Count: n})
}

// Count returns the current value for key.
func (t *Tally) Count(key string) int {
	if i, ok := t.index[key]; ok {
		return t.entries[i].Count
	}
	return 0
}

// Len is the number of distinct keys.
func (t *Tally) Len() int {
	return len(t.entries)
}

// Top returns at most n entries by descending count. Equal counts keep
// insertion order.
func (t *Tally) Top(n int) []models.TallyEntry {
	out := make([]models.TallyEntry, len(t.entries))
	copy(out, t.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Observation pairs a record with whether its title is new to the run.
type Observation struct {
	Record *models.WorkRecord
	First  bool
}

// Aggregator holds the running counters of one scrape. It is not safe for
// concurrent use; a scrape feeds it from a single goroutine.
type Aggregator struct {
	seen       map[string]struct{}
	books      *Tally
	ships      *Tally
	fandoms    *Tally
	ratings    *Tally
	totalWords int
	topN       int
}

// NewAggregator builds an empty aggregator projecting topN entries per tally.
func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 5
	}
	return &Aggregator{
		seen:    make(map[string]struct{}),
		books:   NewTally(),
		ships:   NewTally(),
		fandoms: NewTally(),
		ratings: NewTally(),
		topN:    topN,
	}
}

// Add decides whether record is a first occurrence and folds it.
func (a *Aggregator) Add(record *models.WorkRecord) Observation {
	if record == nil {
		return Observation{}
	}
	_, seen := a.seen[record.Title]
	obs := Observation{Record: record, First: !seen}
	a.Fold(obs)
	return obs
}

// Fold applies one observation. Revisit-weighted book and ship counts grow
// on every occurrence; words, fandoms and ratings only on the first.
func (a *Aggregator) Fold(obs Observation) {
	rec := obs.Record
	if rec == nil || rec.Title == "" {
		return
	}
	weight := rec.RevisitCount
	if weight < 1 {
		weight = 1
	}

	a.books.Add(rec.Title, weight)
	for _, pairing := range rec.Pairings {
		a.ships.Add(pairing, weight)
	}

	if !obs.First {
		return
	}
	if _, ok := a.seen[rec.Title]; ok {
		return
	}
	a.seen[rec.Title] = struct{}{}

	fandoms := rec.Fandoms
	if len(fandoms) == 0 {
		fandoms = []string{models.UnknownFandom}
	}
	for _, fandom := range fandoms {
		a.fandoms.Add(fandom, 1)
	}
	if rec.Rating != "" {
		a.ratings.Add(rec.Rating, 1)
	}
	if rec.WordCount > 0 {
		a.totalWords += rec.WordCount
	}
}

// Seen reports whether title has already been folded as a first occurrence.
func (a *Aggregator) Seen(title string) bool {
	_, ok := a.seen[title]
	return ok
}

// TotalBooks is the number of distinct titles.
func (a *Aggregator) TotalBooks() int {
	return len(a.seen)
}

// TotalWords is the sum of word counts over distinct titles.
func (a *Aggregator) TotalWords() int {
	return a.totalWords
}

// Result projects the counters into a final summary.
func (a *Aggregator) Result() *models.ScrapeResult {
	return &models.ScrapeResult{
		TotalBooks: len(a.seen),
		TotalWords: a.totalWords,
		TopBooks:   a.books.Top(a.topN),
		TopShips:   a.ships.Top(a.topN),
		TopFandoms: a.fandoms.Top(a.topN),
		TopRatings: a.ratings.Top(a.topN),
	}
}
