package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/ao3-wrapped/config"
	"github.com/aluiziolira/ao3-wrapped/models"
	"github.com/aluiziolira/ao3-wrapped/parser"
	"github.com/aluiziolira/ao3-wrapped/pipeline"
)

// Scraper logs into the archive and folds a user's reading history into a
// summary. A Scraper may be reused; every Run opens its own browser session.
type Scraper struct {
	cfg            *config.Config
	base           *url.URL
	selectors      parser.Selectors
	loginSelectors LoginSelectors
	transport      http.RoundTripper
	Metrics        *Metrics
}

// NewScraper builds a scraper configured from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	return &Scraper{
		cfg:            cfg,
		base:           parsed,
		selectors:      parser.DefaultSelectors(),
		loginSelectors: DefaultLoginSelectors(),
		Metrics:        NewMetrics(),
	}, nil
}

// Run authenticates with creds and walks the reading history page by page.
// reporter may be nil. The browser session is released on every return path.
func (s *Scraper) Run(ctx context.Context, creds models.Credentials, reporter Reporter) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}

	b, err := newBrowser(s.cfg, s.base, s.transport, s.Metrics)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("close browser session", slog.Any("error", err))
		}
	}()

	logger := slog.With(slog.String("username", creds.Username))

	if err := s.login(ctx, b, creds); err != nil {
		s.Metrics.IncError(ErrorTypeLabel(err))
		logger.Warn("login failed", slog.Any("error", err))
		return nil, err
	}
	logger.Info("logged in")

	agg := pipeline.NewAggregator(s.cfg.TopN)
	pages, estimated, err := s.paginate(ctx, b, creds.Username, agg, reporter)
	if err != nil {
		s.Metrics.IncError(ErrorTypeLabel(err))
		logger.Error("scrape failed", slog.Int("pages", pages), slog.Any("error", err))
		return nil, err
	}

	result := agg.Result()
	result.PagesScraped = pages
	result.ProgressEstimated = estimated

	logger.Info("scrape complete",
		slog.Int("pages", pages),
		slog.Int("books", result.TotalBooks),
		slog.Int("words", result.TotalWords),
	)
	return result, nil
}

// paginate fetches history pages in ascending order. The page count comes
// from the pagination control on page 1; without one, the walk stops at the
// first page with no entries and progress is measured against the fallback
// ceiling.
func (s *Scraper) paginate(ctx context.Context, b *browser, username string, agg *pipeline.Aggregator, reporter Reporter) (int, bool, error) {
	total := 0
	estimate := s.cfg.FallbackPages
	estimated := false
	processed := 0

	for pageNum := 1; ; pageNum++ {
		if total > 0 && pageNum > total {
			break
		}
		if pageNum > s.cfg.MaxPages {
			slog.Warn("max pages reached, reading history truncated",
				slog.Int("max_pages", s.cfg.MaxPages),
				slog.Int("total_pages", total),
			)
			break
		}
		if err := ctx.Err(); err != nil {
			return processed, estimated, fmt.Errorf("scrape cancelled after %d pages: %w", processed, err)
		}

		target := s.readingsURL(username, pageNum)
		pg, err := b.Get(ctx, target)
		if err != nil {
			return processed, estimated, PageFetchError{Page: pageNum, URL: target, Err: err}
		}

		if pageNum == 1 {
			total = parser.TotalPages(pg.Doc.Selection, s.selectors)
			if total > 0 {
				estimate = total
			} else {
				estimated = true
				slog.Warn("no pagination control found, progress is an estimate",
					slog.Int("assumed_pages", estimate),
				)
			}
		}

		entries := pg.Doc.Find(s.selectors.Entry)
		if entries.Length() == 0 && total == 0 {
			slog.Debug("empty history page, stopping", slog.Int("page", pageNum))
			break
		}

		s.processEntries(entries, agg)
		processed = pageNum
		s.Metrics.IncPages()
		reporter.Report(Percent(pageNum, estimate))

		slog.Debug("history page processed",
			slog.Int("page", pageNum),
			slog.Int("entries", entries.Length()),
			slog.Int("books", agg.TotalBooks()),
		)
	}

	return processed, estimated, nil
}

func (s *Scraper) processEntries(entries *goquery.Selection, agg *pipeline.Aggregator) {
	entries.Each(func(_ int, entry *goquery.Selection) {
		record, ok := parser.ParseWork(entry, s.selectors)
		if !ok {
			s.Metrics.IncWorks("skipped")
			return
		}
		if obs := agg.Add(record); obs.First {
			s.Metrics.IncWorks("first")
		} else {
			s.Metrics.IncWorks("repeat")
		}
	})
}

func (s *Scraper) readingsURL(username string, page int) string {
	u := s.base.ResolveReference(&url.URL{Path: "/users/" + username + "/readings"})
	u.RawQuery = url.Values{"page": []string{strconv.Itoa(page)}}.Encode()
	return u.String()
}

func (s *Scraper) resolve(ref string) string {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return s.base.String()
	}
	return s.base.ResolveReference(parsed).String()
}

// IsAuthError reports whether err is an AuthenticationError.
func IsAuthError(err error) bool {
	var auth AuthenticationError
	return errors.As(err, &auth)
}
