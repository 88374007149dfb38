package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/ao3-wrapped/models"
)

// LoginSelectors locate the login form and the signals that follow it.
type LoginSelectors struct {
	Path           string
	Form           string
	Username       string
	Password       string
	Submit         string
	AccountMarker  string
	InvalidMarkers []string
}

// DefaultLoginSelectors returns the archive's login markup.
func DefaultLoginSelectors() LoginSelectors {
	return LoginSelectors{
		Path:          "/users/login",
		Form:          "form#new_user",
		Username:      `input[name="user[login]"]`,
		Password:      `input[name="user[password]"]`,
		Submit:        `input[type="submit"]`,
		AccountMarker: "#greeting",
		InvalidMarkers: []string{
			"Invalid username or password",
			"The password or user name you entered doesn't match our records",
		},
	}
}

var errAccountMarkerMissing = errors.New("account marker did not appear")

// login submits creds and waits, bounded by the configured login wait, for
// the account marker. Any failure is an AuthenticationError.
func (s *Scraper) login(ctx context.Context, b *browser, creds models.Credentials) error {
	sel := s.loginSelectors
	loginURL := s.resolve(sel.Path)

	formPage, err := b.Get(ctx, loginURL)
	if err != nil {
		return AuthenticationError{Reason: ReasonLoginFailed, Err: fmt.Errorf("load login form: %w", err)}
	}

	form := formPage.Doc.Find(sel.Form).First()
	if form.Length() == 0 {
		return AuthenticationError{Reason: ReasonLoginFailed, Err: errors.New("login form not found")}
	}

	fields := hiddenFields(form)
	fields[inputName(form.Find(sel.Username).First(), "user[login]")] = creds.Username
	fields[inputName(form.Find(sel.Password).First(), "user[password]")] = creds.Password
	if submit := form.Find(sel.Submit).First(); submit.Length() > 0 {
		if name, ok := submit.Attr("name"); ok && name != "" {
			fields[name] = submit.AttrOr("value", "")
		}
	}

	action := loginURL
	if raw, ok := form.Attr("action"); ok && strings.TrimSpace(raw) != "" {
		action = s.resolve(raw)
	}

	result, err := b.Submit(ctx, action, fields)
	if err != nil {
		return AuthenticationError{Reason: ReasonLoginFailed, Err: fmt.Errorf("submit login form: %w", err)}
	}

	return s.awaitAccountMarker(ctx, b, creds.Username, result)
}

func (s *Scraper) awaitAccountMarker(ctx context.Context, b *browser, username string, current *page) error {
	sel := s.loginSelectors
	deadline := time.Now().Add(s.cfg.LoginWait)
	dashboard := s.resolve("/users/" + url.PathEscape(username))

	for {
		if containsAny(current.Body, sel.InvalidMarkers) {
			return AuthenticationError{Reason: ReasonIncorrectCredentials}
		}
		if current.Doc.Find(sel.AccountMarker).Length() > 0 {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return AuthenticationError{Reason: ReasonLoginFailed, Err: errAccountMarkerMissing}
		}

		wait := s.cfg.LoginPollInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return AuthenticationError{Reason: ReasonLoginFailed, Err: ctx.Err()}
		case <-timer.C:
		}

		slog.Debug("probing for account marker", slog.String("url", dashboard))
		next, err := b.Get(ctx, dashboard)
		if err != nil {
			return AuthenticationError{Reason: ReasonLoginFailed, Err: fmt.Errorf("probe account page: %w", err)}
		}
		current = next
	}
}

func hiddenFields(form *goquery.Selection) map[string]string {
	fields := make(map[string]string)
	form.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		if name, ok := input.Attr("name"); ok && name != "" {
			fields[name] = input.AttrOr("value", "")
		}
	})
	return fields
}

func inputName(input *goquery.Selection, fallback string) string {
	if name, ok := input.Attr("name"); ok && name != "" {
		return name
	}
	return fallback
}

func containsAny(body []byte, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && bytes.Contains(body, []byte(marker)) {
			return true
		}
	}
	return false
}
