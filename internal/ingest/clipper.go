// Package ingest turns web pages into notes.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/go-shiori/go-readability"

	"ainotebook/internal/apperr"
	"ainotebook/internal/logging"
	"ainotebook/internal/notebook"
	"ainotebook/internal/store"
)

var (
	// ErrTooLarge is returned when a page exceeds Options.MaxBytes.
	ErrTooLarge = errors.New("page exceeds size limit")
	// ErrBlockedHost is returned when a page resolves to a loopback, private
	// or link-local address and private hosts are not allowed.
	ErrBlockedHost = errors.New("address is not publicly routable")
)

// NoteWriter stores clipped articles.
type NoteWriter interface {
	CreateNote(ctx context.Context, userID string, in notebook.CreateNoteInput) (store.Note, error)
}

// Options control page fetching.
type Options struct {
	Enabled   bool
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	// AllowPrivateHosts disables the public-address check on dialed IPs.
	AllowPrivateHosts bool
}

// Article is the readable part of a page.
type Article struct {
	URL      string
	Title    string
	Content  string // cleaned HTML
	Text     string
	SiteName string
}

// ClipInput is the body of POST /notes/clip.
type ClipInput struct {
	URL        string   `json:"url"`
	NotebookID *string  `json:"notebook_id"`
	Tags       []string `json:"tags"`
}

// Clipper fetches pages and saves their article as a note.
type Clipper struct {
	client *http.Client
	notes  NoteWriter
	opts   Options
	logger *logging.Logger
}

// NewClipper creates a Clipper. A nil client uses http.DefaultClient. Unless
// opts.AllowPrivateHosts is set, the client's transport is replaced by one
// that refuses to connect to non-public addresses.
func NewClipper(client *http.Client, notes NoteWriter, opts Options, logger *logging.Logger) *Clipper {
	if client == nil {
		client = http.DefaultClient
	}
	if !opts.AllowPrivateHosts {
		client = publicOnly(client, logger)
	}
	return &Clipper{
		client: client,
		notes:  notes,
		opts:   opts,
		logger: logger,
	}
}

// Clip fetches in.URL and saves its article as a note owned by userID.
func (c *Clipper) Clip(ctx context.Context, userID string, in ClipInput) (store.Note, error) {
	article, err := c.Fetch(ctx, in.URL)
	if err != nil {
		return store.Note{}, err
	}

	content, err := json.Marshal(article.Content + sourceFooter(article))
	if err != nil {
		return store.Note{}, fmt.Errorf("failed to encode article: %w", err)
	}
	note, err := c.notes.CreateNote(ctx, userID, notebook.CreateNoteInput{
		Title:      article.Title,
		Content:    content,
		NotebookID: notebook.OptionalString{Set: in.NotebookID != nil, Value: in.NotebookID},
		Tags:       in.Tags,
	})
	if err != nil {
		return store.Note{}, err
	}

	c.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"note_id":   note.ID,
		"url":       article.URL,
		"site":      article.SiteName,
		"text_size": len(article.Text),
	}).Info("page clipped")
	return note, nil
}

// sourceFooter links the note back to the page it was clipped from.
func sourceFooter(a Article) string {
	return fmt.Sprintf(`<p class="clip-source">Source: <a href="%s">%s</a></p>`,
		html.EscapeString(a.URL), html.EscapeString(a.SiteName))
}

// Fetch downloads rawURL and extracts its article.
func (c *Clipper) Fetch(ctx context.Context, rawURL string) (Article, error) {
	logger := c.logger.WithContext("url", rawURL)

	if !c.opts.Enabled {
		return Article{}, apperr.Validation("web clipping is disabled")
	}

	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return Article{}, apperr.Validation("a valid http(s) url is required")
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return Article{}, fmt.Errorf("failed to create request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if errors.Is(err, ErrBlockedHost) {
		logger.WithContext("error", err.Error()).Warn("refusing to fetch non-public address")
		return Article{}, apperr.Validation("url must point to a public address")
	}
	if err != nil {
		logger.WithContext("error", err.Error()).Warn("failed to fetch page")
		return Article{}, apperr.Upstream("failed to fetch page", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WithContext("status", resp.StatusCode).Warn("page returned an error status")
		return Article{}, apperr.Upstream(fmt.Sprintf("page returned status %d", resp.StatusCode), nil)
	}

	body, err := c.readBody(resp.Body)
	if errors.Is(err, ErrTooLarge) {
		return Article{}, apperr.Validation(ErrTooLarge.Error())
	}
	if err != nil {
		return Article{}, apperr.Upstream("failed to read page", err)
	}

	parsed, err := readability.FromReader(strings.NewReader(body), pageURL)
	if err != nil {
		logger.WithContext("error", err.Error()).Warn("failed to parse page")
		return Article{}, apperr.Upstream("failed to extract article", err)
	}

	article := Article{
		URL:      pageURL.String(),
		Title:    strings.TrimSpace(parsed.Title),
		Content:  parsed.Content,
		Text:     strings.TrimSpace(parsed.TextContent),
		SiteName: strings.TrimSpace(parsed.SiteName),
	}
	if article.Title == "" {
		article.Title = pageURL.Hostname()
	}
	if article.SiteName == "" {
		article.SiteName = pageURL.Hostname()
	}
	if strings.TrimSpace(article.Content) == "" {
		return Article{}, apperr.Validation("no readable content found")
	}

	logger.WithContext("text_size", len(article.Text)).Debug("page fetched and parsed")
	return article, nil
}

func (c *Clipper) readBody(r io.Reader) (string, error) {
	if c.opts.MaxBytes <= 0 {
		b, err := io.ReadAll(r)
		return string(b), err
	}
	b, err := io.ReadAll(io.LimitReader(r, c.opts.MaxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(b)) > c.opts.MaxBytes {
		return "", ErrTooLarge
	}
	return string(b), nil
}

// publicOnly returns a copy of client whose connections are checked against
// the dialed IP, so DNS names and redirects cannot reach internal services.
// Clients with a custom RoundTripper are returned unchanged.
func publicOnly(client *http.Client, logger *logging.Logger) *http.Client {
	var base *http.Transport
	switch t := client.Transport.(type) {
	case nil:
		base = http.DefaultTransport.(*http.Transport)
	case *http.Transport:
		base = t
	default:
		logger.Warn("custom http transport, private address check disabled")
		return client
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   rejectNonPublic,
	}
	transport := base.Clone()
	// a proxy would be the dialed address, hiding the target
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	guarded := *client
	guarded.Transport = transport
	return &guarded
}

func rejectNonPublic(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}
