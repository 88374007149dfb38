package scraper

// Reporter receives progress percentages while a scrape runs.
type Reporter interface {
	Report(percent int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(percent int)

// Report calls f(percent).
func (f ReporterFunc) Report(percent int) {
	f(percent)
}

type nopReporter struct{}

func (nopReporter) Report(int) {}

// Percent returns floor(100*done/total) clamped to [0, 100].
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return 100 * done / total
}
