// Package hardcover implements the Hardcover GraphQL API as a sync destination.
package hardcover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrlokans/shelfsync/internal/destinations"
)

const (
	// Name identifies Hardcover in match results and history.
	Name = "hardcover"

	DefaultAPIURL    = "https://api.hardcover.app/v1/graphql"
	DefaultRateLimit = 1.0

	defaultTimeout = 30 * time.Second
	titleLimit     = 5
)

// Hardcover user_book status ids.
const (
	statusWantToRead       = 1
	statusCurrentlyReading = 2
	statusFinished         = 3
	statusDidNotFinish     = 4
)

var statusIDs = map[destinations.ReadingStatus]int{
	destinations.StatusWantToRead:       statusWantToRead,
	destinations.StatusCurrentlyReading: statusCurrentlyReading,
	destinations.StatusFinished:         statusFinished,
	destinations.StatusDidNotFinish:     statusDidNotFinish,
}

// Config holds the settings of a Hardcover client.
type Config struct {
	APIKey    string
	APIURL    string
	Timeout   time.Duration
	RateLimit float64
}

// Client talks to the Hardcover GraphQL API.
type Client struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	// library holds the user_books listing between BeginCycle and EndCycle.
	mu         sync.Mutex
	inCycle    bool
	library    []userBook
	librarySet bool
}

// NewClient creates a new Hardcover API client
func NewClient(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

func (c *Client) Name() string {
	return Name
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type book struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	ISBN10        string `json:"isbn_10"`
	ISBN13        string `json:"isbn_13"`
	ASIN          string `json:"asin"`
	Contributions []struct {
		Author struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"contributions"`
}

func (b book) author() string {
	if len(b.Contributions) == 0 {
		return ""
	}
	return b.Contributions[0].Author.Name
}

func (b book) isbn() string {
	if b.ISBN10 != "" {
		return b.ISBN10
	}
	return b.ISBN13
}

func (b book) toMatch() *destinations.Match {
	return &destinations.Match{
		CatalogID: strconv.Itoa(b.ID),
		Title:     b.Title,
		Author:    b.author(),
		ISBN:      b.isbn(),
		ASIN:      b.ASIN,
	}
}

type userBook struct {
	ID       int  `json:"id"`
	BookID   int  `json:"book_id"`
	StatusID int  `json:"status_id"`
	Progress *int `json:"progress"`
	Book     book `json:"book"`
}

const bookFields = `
	id
	title
	isbn_10
	isbn_13
	asin
	contributions {
		author {
			name
		}
	}`

const meQuery = `query TestConnection {
	me {
		id
	}
}`

const isbnQuery = `query SearchByISBN($isbn: String!) {
	books(where: {_or: [{isbn_10: {_eq: $isbn}}, {isbn_13: {_eq: $isbn}}]}) {` + bookFields + `
	}
}`

const asinQuery = `query SearchByASIN($asin: String!) {
	books(where: {asin: {_eq: $asin}}) {` + bookFields + `
	}
}`

const titleQuery = `query SearchByTitle($title: String!, $limit: Int!) {
	books(where: {title: {_ilike: $title}}, limit: $limit) {` + bookFields + `
	}
}`

const userBooksQuery = `query GetUserBooks {
	me {
		user_books {
			id
			book_id
			status_id
			progress
			book {` + bookFields + `
			}
		}
	}
}`

const updateProgressMutation = `mutation UpdateProgress($id: Int!, $progress: Int, $status_id: Int) {
	update_user_book(where: {id: {_eq: $id}}, _set: {progress: $progress, status_id: $status_id}) {
		affected_rows
	}
}`

const updateProgressOnlyMutation = `mutation UpdateProgress($id: Int!, $progress: Int) {
	update_user_book(where: {id: {_eq: $id}}, _set: {progress: $progress}) {
		affected_rows
	}
}`

const addBookMutation = `mutation AddBookToLibrary($book_id: Int!, $status_id: Int!) {
	insert_user_book_one(object: {book_id: $book_id, status_id: $status_id}) {
		id
	}
}`

// TestConnection verifies the API key by fetching the current user.
func (c *Client) TestConnection(ctx context.Context) error {
	var resp struct {
		Me []struct {
			ID int `json:"id"`
		} `json:"me"`
	}
	if err := c.do(ctx, meQuery, nil, &resp); err != nil {
		return err
	}
	if len(resp.Me) == 0 {
		return fmt.Errorf("%w: no user for API key", destinations.ErrUnavailable)
	}
	return nil
}

// SearchByISBN looks up a catalog book by ISBN-10 or ISBN-13.
func (c *Client) SearchByISBN(ctx context.Context, isbn string) (*destinations.Match, error) {
	return c.searchOne(ctx, isbnQuery, map[string]any{"isbn": isbn})
}

// SearchByASIN looks up a catalog book by Audible ASIN.
func (c *Client) SearchByASIN(ctx context.Context, asin string) (*destinations.Match, error) {
	return c.searchOne(ctx, asinQuery, map[string]any{"asin": asin})
}

// SearchByTitleAuthor searches titles containing title and picks the best candidate,
// preferring books whose first author contains author.
func (c *Client) SearchByTitleAuthor(ctx context.Context, title, author string) (*destinations.Match, error) {
	books, err := c.search(ctx, titleQuery, map[string]any{"title": "%" + title + "%", "limit": titleLimit})
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, nil
	}

	candidates := make([]destinations.Match, len(books))
	for i, b := range books {
		candidates[i] = *b.toMatch()
	}
	if best := destinations.BestTitleMatch(title, author, candidates); best != nil {
		return best, nil
	}
	return &candidates[0], nil
}

// FindInLibrary searches the user's books by ISBN, then ASIN, then title and author.
func (c *Client) FindInLibrary(ctx context.Context, query destinations.LibraryQuery) (*destinations.Match, error) {
	userBooks, err := c.userBooks(ctx)
	if err != nil {
		return nil, err
	}

	toMatch := func(ub userBook) *destinations.Match {
		m := ub.Book.toMatch()
		if ub.Book.ID == 0 {
			m.CatalogID = strconv.Itoa(ub.BookID)
		}
		m.LibraryID = strconv.Itoa(ub.ID)
		return m
	}

	if query.ISBN != "" {
		for _, ub := range userBooks {
			if ub.Book.ISBN10 == query.ISBN || ub.Book.ISBN13 == query.ISBN {
				return toMatch(ub), nil
			}
		}
	}

	if query.ASIN != "" {
		for _, ub := range userBooks {
			if ub.Book.ASIN == query.ASIN {
				return toMatch(ub), nil
			}
		}
	}

	if query.Title != "" {
		for _, ub := range userBooks {
			score := destinations.TitleScore(query.Title, ub.Book.Title)
			if score < 0 || score > 50 {
				continue
			}
			if query.Author != "" && ub.Book.author() != "" && !destinations.AuthorMatches(query.Author, ub.Book.author()) {
				continue
			}
			return toMatch(ub), nil
		}
	}

	return nil, nil
}

// AddToLibrary adds a catalog book to the user's library and returns the user_book id.
func (c *Client) AddToLibrary(ctx context.Context, catalogID string, status destinations.ReadingStatus) (string, error) {
	bookID, err := strconv.Atoi(catalogID)
	if err != nil {
		return "", fmt.Errorf("invalid hardcover book id %q: %w", catalogID, err)
	}

	statusID, ok := statusIDs[status]
	if !ok {
		statusID = statusCurrentlyReading
	}

	var resp struct {
		Insert *struct {
			ID int `json:"id"`
		} `json:"insert_user_book_one"`
	}
	err = c.do(ctx, addBookMutation, map[string]any{"book_id": bookID, "status_id": statusID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Insert == nil || resp.Insert.ID == 0 {
		return "", fmt.Errorf("%w: book %s was not added", destinations.ErrRejected, catalogID)
	}
	c.invalidateLibrary()
	return strconv.Itoa(resp.Insert.ID), nil
}

// UpdateProgress sets the progress of a user_book. Without an explicit status the
// status is derived from the percentage.
func (c *Client) UpdateProgress(ctx context.Context, libraryID string, percent int, status destinations.ReadingStatus) error {
	userBookID, err := strconv.Atoi(libraryID)
	if err != nil {
		return fmt.Errorf("invalid hardcover user book id %q: %w", libraryID, err)
	}

	if status == destinations.StatusNone {
		status = destinations.StatusForPercent(percent)
	}

	query := updateProgressOnlyMutation
	vars := map[string]any{"id": userBookID, "progress": percent}
	if statusID, ok := statusIDs[status]; ok {
		query = updateProgressMutation
		vars["status_id"] = statusID
	}

	var resp struct {
		Update *struct {
			AffectedRows int `json:"affected_rows"`
		} `json:"update_user_book"`
	}
	if err := c.do(ctx, query, vars, &resp); err != nil {
		return err
	}
	if resp.Update == nil || resp.Update.AffectedRows == 0 {
		return fmt.Errorf("%w: user book %s not updated", destinations.ErrRejected, libraryID)
	}
	return nil
}

// MarkFinished sets the user_book to 100% and finished.
func (c *Client) MarkFinished(ctx context.Context, libraryID string) error {
	return c.UpdateProgress(ctx, libraryID, 100, destinations.StatusFinished)
}

func (c *Client) searchOne(ctx context.Context, query string, vars map[string]any) (*destinations.Match, error) {
	books, err := c.search(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, nil
	}
	return books[0].toMatch(), nil
}

func (c *Client) search(ctx context.Context, query string, vars map[string]any) ([]book, error) {
	var resp struct {
		Books []book `json:"books"`
	}
	if err := c.do(ctx, query, vars, &resp); err != nil {
		return nil, err
	}
	return resp.Books, nil
}

// BeginCycle makes FindInLibrary reuse one user_books listing until EndCycle.
func (c *Client) BeginCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inCycle = true
	c.library, c.librarySet = nil, false
}

// EndCycle drops the cached listing.
func (c *Client) EndCycle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inCycle = false
	c.library, c.librarySet = nil, false
}

func (c *Client) invalidateLibrary() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.library, c.librarySet = nil, false
}

func (c *Client) userBooks(ctx context.Context) ([]userBook, error) {
	c.mu.Lock()
	if c.inCycle && c.librarySet {
		cached := c.library
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	books, err := c.fetchUserBooks(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.inCycle {
		c.library, c.librarySet = books, true
	}
	c.mu.Unlock()
	return books, nil
}

func (c *Client) fetchUserBooks(ctx context.Context) ([]userBook, error) {
	var resp struct {
		Me []struct {
			UserBooks []userBook `json:"user_books"`
		} `json:"me"`
	}
	if err := c.do(ctx, userBooksQuery, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Me) == 0 {
		return nil, nil
	}
	return resp.Me[0].UserBooks, nil
}

// do executes a GraphQL operation and decodes its data into out.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", destinations.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: invalid API key", destinations.ErrUnavailable)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		messages := make([]string, len(gqlResp.Errors))
		for i, e := range gqlResp.Errors {
			messages[i] = e.Message
		}
		return &GraphQLError{Messages: messages}
	}
	if out == nil || len(gqlResp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
