// Package storygraph implements StoryGraph as a sync destination.
//
// StoryGraph has no public API: the client reads its HTML pages with goquery and
// submits the same forms the site does, authenticated by the session cookie of a
// signed-in browser.
package storygraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/mrlokans/shelfsync/internal/destinations"
)

const (
	// Name identifies StoryGraph in match results and history.
	Name = "storygraph"

	DefaultBaseURL   = "https://app.thestorygraph.com"
	DefaultRateLimit = 0.5

	sessionCookie  = "remember_user_token"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultTimeout = 30 * time.Second
)

var (
	bookPathRe   = regexp.MustCompile(`^/books/([\w-]+)/?$`)
	isbnRe       = regexp.MustCompile(`\b(\d{13}|\d{9}[\dX])\b`)
	progressForm = regexp.MustCompile(`progress|reading|status`)
)

// Config holds the settings of a StoryGraph client.
type Config struct {
	Cookie    string
	Username  string
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// Client scrapes and drives the StoryGraph web app.
type Client struct {
	baseURL    string
	cookie     string
	username   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.Mutex
	csrfToken string
	inCycle   bool
	shelf     []destinations.Match
	shelfSet  bool
}

// NewClient creates a new StoryGraph client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}

	cookie := strings.TrimSpace(cfg.Cookie)
	if cookie != "" && !strings.Contains(cookie, "=") {
		cookie = sessionCookie + "=" + cookie
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		cookie:   cookie,
		username: cfg.Username,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
	c.httpClient = &http.Client{Timeout: cfg.Timeout, CheckRedirect: c.checkRedirect}
	return c
}

func (c *Client) Name() string {
	return Name
}

// TestConnection loads the home page and checks the session was not bounced to sign-in.
func (c *Client) TestConnection(ctx context.Context) error {
	if c.cookie == "" {
		return fmt.Errorf("%w: no session cookie", destinations.ErrUnavailable)
	}
	_, err := c.getDocument(ctx, "/", nil)
	return err
}

// SearchByISBN returns the first search result for the ISBN.
func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*destinations.Match, error) {
	return c.searchFirst(ctx, isbn)
}

// SearchByASIN returns the first search result for the ASIN. StoryGraph does not index
// ASINs, so this only hits when the ASIN appears in an edition's metadata.
func (c *Client) SearchByASIN(ctx context.Context, asin string) (*destinations.Match, error) {
	return c.searchFirst(ctx, asin)
}

// SearchByTitleAuthor searches "title author" and returns the result whose title best matches.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title, author string) (*destinations.Match, error) {
	query := title
	if author != "" {
		query = title + " " + author
	}

	results, err := c.search(ctx, query)
	if err != nil || len(results) == 0 {
		return nil, err
	}

	best := destinations.BestTitleMatch(title, author, results)
	if best == nil {
		return nil, nil
	}
	return c.getBook(ctx, best.CatalogID)
}

// FindInLibrary looks for the book on the user's currently-reading shelf.
// Without a username the shelf cannot be addressed and nothing is found.
func (c *Client) FindInLibrary(ctx context.Context, query destinations.LibraryQuery) (*destinations.Match, error) {
	if c.username == "" || query.Title == "" {
		return nil, nil
	}

	entries, err := c.currentlyReading(ctx)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		score := destinations.TitleScore(query.Title, entry.Title)
		if score < 0 || score > 50 {
			continue
		}
		entry.LibraryID = entry.CatalogID
		return &entry, nil
	}
	return nil, nil
}

// AddToLibrary puts the book on the shelf for status. StoryGraph keys shelf entries by
// book, so the returned library id is the catalog id.
func (c *Client) AddToLibrary(ctx context.Context, catalogID string, status destinations.ReadingStatus) (string, error) {
	if status == destinations.StatusNone {
		status = destinations.StatusCurrentlyReading
	}
	if err := c.postReadStatus(ctx, catalogID, status, 0); err != nil {
		return "", err
	}
	c.invalidateShelf()
	return catalogID, nil
}

// BeginCycle makes FindInLibrary reuse one currently-reading shelf until EndCycle.
func (c *Client) BeginCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inCycle = true
	c.shelf, c.shelfSet = nil, false
}

// EndCycle drops the cached shelf.
func (c *Client) EndCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inCycle = false
	c.shelf, c.shelfSet = nil, false
}

func (c *Client) invalidateShelf() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shelf, c.shelfSet = nil, false
}

func (c *Client) currentlyReading(ctx context.Context) ([]destinations.Match, error) {
	c.mu.Lock()
	if c.inCycle && c.shelfSet {
		cached := c.shelf
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	doc, err := c.getDocument(ctx, "/currently-reading/"+url.PathEscape(c.username), nil)
	if err != nil {
		return nil, err
	}
	entries := bookLinks(doc)

	c.mu.Lock()
	if c.inCycle {
		c.shelf, c.shelfSet = entries, true
	}
	c.mu.Unlock()
	return entries, nil
}

// UpdateProgress submits the progress form of the book page, falling back to a
// read status update when the page has no such form.
func (c *Client) UpdateProgress(ctx context.Context, libraryID string, percent int, status destinations.ReadingStatus) error {
	doc, err := c.getDocument(ctx, "/books/"+url.PathEscape(libraryID), nil)
	if err != nil {
		return err
	}

	form := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
		action, _ := s.Attr("action")
		return progressForm.MatchString(action)
	}).First()

	if form.Length() == 0 {
		if status == destinations.StatusNone {
			status = destinations.StatusCurrentlyReading
		}
		return c.postReadStatus(ctx, libraryID, status, percent)
	}

	action, _ := form.Attr("action")
	values := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		values.Set(name, value)
	})
	values.Set("progress", strconv.Itoa(percent))
	if status != destinations.StatusNone {
		values.Set("status", string(status))
	}

	return c.postForm(ctx, action, values)
}

// MarkFinished sets the book to 100% and finished.
func (c *Client) MarkFinished(ctx context.Context, libraryID string) error {
	return c.UpdateProgress(ctx, libraryID, 100, destinations.StatusFinished)
}

func (c *Client) searchFirst(ctx context.Context, query string) (*destinations.Match, error) {
	results, err := c.search(ctx, query)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return c.getBook(ctx, results[0].CatalogID)
}

func (c *Client) search(ctx context.Context, query string) ([]destinations.Match, error) {
	doc, err := c.getDocument(ctx, "/books", url.Values{"q": {query}})
	if err != nil {
		return nil, err
	}
	return bookLinks(doc), nil
}

// getBook reads title, author and ISBN from a book page.
func (c *Client) getBook(ctx context.Context, id string) (*destinations.Match, error) {
	doc, err := c.getDocument(ctx, "/books/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return parseBookPage(id, doc), nil
}

func parseBookPage(id string, doc *goquery.Document) *destinations.Match {
	match := &destinations.Match{CatalogID: id}

	title := doc.Find("h1").First()
	if title.Length() == 0 {
		title = doc.Find("h2.book-title").First()
	}
	match.Title = strings.TrimSpace(title.Text())

	match.Author = strings.TrimSpace(doc.Find(`a[href^="/authors/"]`).First().Text())

	doc.Find("p, span, div, li").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := s.Text()
		if !strings.Contains(text, "ISBN") {
			return true
		}
		if m := isbnRe.FindStringSubmatch(text); m != nil {
			match.ISBN = m[1]
			return false
		}
		return true
	})

	return match
}

// bookLinks collects the distinct book links of a page in document order,
// keeping the longest link text seen for each book as its title.
func bookLinks(doc *goquery.Document) []destinations.Match {
	var results []destinations.Match
	index := make(map[string]int)

	doc.Find(`a[href^="/books/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		m := bookPathRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		text := strings.TrimSpace(s.Text())

		if i, ok := index[id]; ok {
			if len(text) > len(results[i].Title) {
				results[i].Title = text
			}
			return
		}
		index[id] = len(results)
		results = append(results, destinations.Match{CatalogID: id, Title: text})
	})

	return results
}

func (c *Client) postReadStatus(ctx context.Context, bookID string, status destinations.ReadingStatus, percent int) error {
	body, err := json.Marshal(map[string]any{"status": string(status), "progress": percent})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/books/"+url.PathEscape(bookID)+"/read_statuses", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.submit(req)
}

func (c *Client) postForm(ctx context.Context, action string, values url.Values) error {
	req, err := c.newRequest(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.submit(req)
}

func (c *Client) submit(req *http.Request) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusFound, http.StatusNoContent:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", destinations.ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *Client) getDocument(ctx context.Context, path string, query url.Values) (*goquery.Document, error) {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	if token, ok := doc.Find(`meta[name="csrf-token"]`).Attr("content"); ok && token != "" {
		c.mu.Lock()
		c.csrfToken = token
		c.mu.Unlock()
	}

	return doc, nil
}

// newRequest resolves path against the base URL. Scraped form actions may be absolute,
// so any target outside the base host is refused before credentials are attached.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if method != http.MethodGet {
		c.mu.Lock()
		token := c.csrfToken
		c.mu.Unlock()
		if token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
	}
	return req, nil
}

func (c *Client) resolve(path string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}

	target := base.ResolveReference(ref)
	if !sameOrigin(base, target) {
		return nil, fmt.Errorf("%w: refusing request to foreign host %s", destinations.ErrRejected, target.Host)
	}
	return target, nil
}

// checkRedirect stops redirects that leave the StoryGraph host.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after %d redirects", len(via))
	}
	if !sameOrigin(via[0].URL, req.URL) {
		return fmt.Errorf("%w: refusing redirect to foreign host %s", destinations.ErrRejected, req.URL.Host)
	}
	return nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// do sends a paced request and maps a bounce to the sign-in page to ErrUnavailable.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", destinations.ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || strings.Contains(resp.Request.URL.Path, "sign_in") {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: session cookie rejected", destinations.ErrUnavailable)
	}
	return resp, nil
}
