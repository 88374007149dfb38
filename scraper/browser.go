package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/ao3-wrapped/config"
)

var errBrowserClosed = errors.New("browser session closed")

// page is a fetched and parsed document.
type page struct {
	URL  *url.URL
	Body []byte
	Doc  *goquery.Document
}

// browser is a cookie-carrying navigation session owned by one scrape.
// Requests run synchronously, one at a time.
type browser struct {
	collector *colly.Collector
	metrics   *Metrics

	ctx     context.Context
	resp    *colly.Response
	respErr error
	closed  bool
}

func newBrowser(cfg *config.Config, base *url.URL, transport http.RoundTripper, metrics *Metrics) (*browser, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	collector.WithTransport(transport)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	collector.SetCookieJar(jar)

	b := &browser{
		collector: collector,
		metrics:   metrics,
		ctx:       context.Background(),
	}
	b.configureHandlers()
	return b, nil
}

func (b *browser) configureHandlers() {
	b.collector.OnRequest(func(r *colly.Request) {
		if b.ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Ctx.Put("start", time.Now())
		b.metrics.IncRequest(r.Method)
	})

	b.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny("start").(time.Time); ok {
			b.metrics.ObserveDuration(time.Since(start))
		}
		b.resp = r
	})

	b.collector.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		b.respErr = classifyError(err, statusCode)
	})
}

// Get loads target and parses the response body.
func (b *browser) Get(ctx context.Context, target string) (*page, error) {
	return b.do(ctx, target, func() error {
		return b.collector.Visit(target)
	})
}

// Submit posts form to target, following redirects.
func (b *browser) Submit(ctx context.Context, target string, form map[string]string) (*page, error) {
	return b.do(ctx, target, func() error {
		return b.collector.Post(target, form)
	})
}

func (b *browser) do(ctx context.Context, target string, send func() error) (*page, error) {
	if b.closed {
		return nil, errBrowserClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.ctx = ctx
	b.resp = nil
	b.respErr = nil
	defer func() { b.ctx = context.Background() }()

	err := send()
	if b.respErr != nil {
		return nil, b.respErr
	}
	if err != nil {
		return nil, classifyError(err, 0)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.resp == nil {
		return nil, fmt.Errorf("no response from %s", target)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", target, err)
	}
	return &page{
		URL:  b.resp.Request.URL,
		Body: b.resp.Body,
		Doc:  doc,
	}, nil
}

// Close drops the session cookies. Further requests fail.
func (b *browser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("reset cookie jar: %w", err)
	}
	b.collector.SetCookieJar(jar)
	return nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return fmt.Errorf("http status %d", statusCode)
	}
	return err
}
