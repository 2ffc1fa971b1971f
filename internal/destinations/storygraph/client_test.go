package storygraph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/shelfsync/internal/destinations"
)

const searchPage = `<html><body>
<div class="search-results">
  <div class="book-pane"><a href="/books/abc-2"><img src="cover.jpg"></a><a href="/books/abc-2">Dune Messiah</a></div>
  <div class="book-pane"><a href="/books/abc-1">Dune</a><a href="/books/abc-1/editions">Editions</a></div>
</div>
</body></html>`

const dunePage = `<html><head><meta name="csrf-token" content="token-123"></head><body>
<h1>Dune</h1>
<p><a href="/authors/frank-herbert">Frank Herbert</a></p>
<div class="edition-info"><p>ISBN/UID: 9780441013593</p><p>Format: Audio</p></div>
<form action="/books/abc-1/update_progress" method="post">
  <input type="hidden" name="authenticity_token" value="form-token">
  <input type="hidden" name="read_status_id" value="77">
  <input type="number" name="progress" value="0">
</form>
</body></html>`

const messiahPage = `<html><body><h1>Dune Messiah</h1><a href="/authors/frank-herbert">Frank Herbert</a></body></html>`

const shelfPage = `<html><body>
<div class="book-title-author-and-series"><a href="/books/abc-1">Dune</a></div>
</body></html>`

type fakeSite struct {
	mu          sync.Mutex
	searches    []string
	forms       []url.Values
	statuses    []map[string]any
	csrfHeaders []string
	shelfLoads  int
}

func newFakeSite(t *testing.T) (*fakeSite, *httptest.Server) {
	site := &fakeSite{}

	mux := http.NewServeMux()
	mux.HandleFunc("/sign_in", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><form action="/sign_in"></form></body></html>`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Cookie"), "remember_user_token=good") {
			http.Redirect(w, r, "/sign_in", http.StatusFound)
			return
		}

		site.mu.Lock()
		defer site.mu.Unlock()

		switch {
		case r.URL.Path == "/":
			_, _ = w.Write([]byte(`<html><head><meta name="csrf-token" content="home-token"></head></html>`))
		case r.URL.Path == "/books":
			site.searches = append(site.searches, r.URL.Query().Get("q"))
			if strings.Contains(r.URL.Query().Get("q"), "nothing") {
				_, _ = w.Write([]byte(`<html><body>No results</body></html>`))
				return
			}
			_, _ = w.Write([]byte(searchPage))
		case r.URL.Path == "/books/abc-1":
			_, _ = w.Write([]byte(dunePage))
		case r.URL.Path == "/books/abc-2":
			_, _ = w.Write([]byte(messiahPage))
		case r.URL.Path == "/books/abc-1/update_progress" && r.Method == http.MethodPost:
			assert.NoError(t, r.ParseForm())
			site.forms = append(site.forms, r.PostForm)
			site.csrfHeaders = append(site.csrfHeaders, r.Header.Get("X-CSRF-Token"))
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/read_statuses") && r.Method == http.MethodPost:
			var body map[string]any
			raw, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(raw, &body))
			body["book"] = strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/books/"), "/read_statuses")
			site.statuses = append(site.statuses, body)
			if body["book"] == "rejected" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/currently-reading/reader":
			site.shelfLoads++
			_, _ = w.Write([]byte(shelfPage))
		default:
			http.NotFound(w, r)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return site, server
}

func newTestClient(server *httptest.Server, cookie string) *Client {
	return NewClient(Config{Cookie: cookie, Username: "reader", BaseURL: server.URL, RateLimit: 1000})
}

func TestNewClient_CookieFormats(t *testing.T) {
	assert.Equal(t, "remember_user_token=abc", NewClient(Config{Cookie: "abc"}).cookie)
	assert.Equal(t, "_session=xyz; remember_user_token=abc", NewClient(Config{Cookie: "_session=xyz; remember_user_token=abc"}).cookie)
	assert.Equal(t, DefaultBaseURL, NewClient(Config{}).baseURL)
}

func TestClient_TestConnection(t *testing.T) {
	_, server := newFakeSite(t)

	assert.NoError(t, newTestClient(server, "good").TestConnection(context.Background()))

	err := newTestClient(server, "expired").TestConnection(context.Background())
	assert.ErrorIs(t, err, destinations.ErrUnavailable)

	err = newTestClient(server, "").TestConnection(context.Background())
	assert.ErrorIs(t, err, destinations.ErrUnavailable)
}

func TestClient_SearchByISBN(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	match, err := client.SearchByISBN(context.Background(), "9780441013593")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "abc-2", match.CatalogID)
	assert.Equal(t, "Dune Messiah", match.Title)
	assert.Equal(t, []string{"9780441013593"}, site.searches)
}

func TestClient_SearchByTitleAuthor(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	match, err := client.SearchByTitleAuthor(context.Background(), "Dune", "Frank Herbert")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, "abc-1", match.CatalogID)
	assert.Equal(t, "Dune", match.Title)
	assert.Equal(t, "Frank Herbert", match.Author)
	assert.Equal(t, "9780441013593", match.ISBN)
	assert.Equal(t, []string{"Dune Frank Herbert"}, site.searches)
}

func TestClient_Search_NoResults(t *testing.T) {
	_, server := newFakeSite(t)
	client := newTestClient(server, "good")

	match, err := client.SearchByASIN(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = client.SearchByTitleAuthor(context.Background(), "nothing", "")
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestClient_FindInLibrary(t *testing.T) {
	_, server := newFakeSite(t)
	client := newTestClient(server, "good")

	match, err := client.FindInLibrary(context.Background(), destinations.LibraryQuery{Title: "dune"})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "abc-1", match.CatalogID)
	assert.Equal(t, "abc-1", match.LibraryID)

	match, err = client.FindInLibrary(context.Background(), destinations.LibraryQuery{Title: "Neuromancer"})
	require.NoError(t, err)
	assert.Nil(t, match)

	noUser := NewClient(Config{Cookie: "good", BaseURL: server.URL, RateLimit: 1000})
	match, err = noUser.FindInLibrary(context.Background(), destinations.LibraryQuery{Title: "Dune"})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestClient_FindInLibrary_CachesShelfPerCycle(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")
	ctx := context.Background()

	client.BeginCycle()
	for range 3 {
		match, err := client.FindInLibrary(ctx, destinations.LibraryQuery{Title: "Dune"})
		require.NoError(t, err)
		require.NotNil(t, match)
	}
	assert.Equal(t, 1, site.shelfLoads)

	_, err := client.AddToLibrary(ctx, "abc-2", destinations.StatusCurrentlyReading)
	require.NoError(t, err)
	_, err = client.FindInLibrary(ctx, destinations.LibraryQuery{Title: "Dune"})
	require.NoError(t, err)
	assert.Equal(t, 2, site.shelfLoads)
	client.EndCycle()

	_, err = client.FindInLibrary(ctx, destinations.LibraryQuery{Title: "Dune"})
	require.NoError(t, err)
	assert.Equal(t, 3, site.shelfLoads)
}

func TestClient_AddToLibrary(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	id, err := client.AddToLibrary(context.Background(), "abc-2", destinations.StatusCurrentlyReading)
	require.NoError(t, err)
	assert.Equal(t, "abc-2", id)

	require.Len(t, site.statuses, 1)
	assert.Equal(t, "currently_reading", site.statuses[0]["status"])
	assert.Equal(t, "abc-2", site.statuses[0]["book"])

	_, err = client.AddToLibrary(context.Background(), "rejected", destinations.StatusNone)
	assert.ErrorIs(t, err, destinations.ErrRejected)
}

func TestClient_UpdateProgress_SubmitsForm(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	err := client.UpdateProgress(context.Background(), "abc-1", 42, destinations.StatusCurrentlyReading)
	require.NoError(t, err)

	require.Len(t, site.forms, 1)
	form := site.forms[0]
	assert.Equal(t, "42", form.Get("progress"))
	assert.Equal(t, "currently_reading", form.Get("status"))
	assert.Equal(t, "form-token", form.Get("authenticity_token"))
	assert.Equal(t, "77", form.Get("read_status_id"))
	assert.Equal(t, "token-123", site.csrfHeaders[0])
}

func TestClient_UpdateProgress_FallsBackToReadStatus(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	err := client.UpdateProgress(context.Background(), "abc-2", 10, destinations.StatusNone)
	require.NoError(t, err)

	require.Len(t, site.statuses, 1)
	assert.Equal(t, "currently_reading", site.statuses[0]["status"])
	assert.EqualValues(t, 10, site.statuses[0]["progress"])
}

func TestClient_MarkFinished(t *testing.T) {
	site, server := newFakeSite(t)
	client := newTestClient(server, "good")

	require.NoError(t, client.MarkFinished(context.Background(), "abc-1"))

	require.Len(t, site.forms, 1)
	assert.Equal(t, "100", site.forms[0].Get("progress"))
	assert.Equal(t, "finished", site.forms[0].Get("status"))
}

func newForeignHost(t *testing.T) (*httptest.Server, *[]string) {
	var mu sync.Mutex
	var cookies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &cookies
}

func TestClient_UpdateProgress_RefusesForeignFormAction(t *testing.T) {
	foreign, received := newForeignHost(t)

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h1>Dune</h1>
<form action="` + foreign.URL + `/books/abc-1/update_progress" method="post">
  <input type="hidden" name="authenticity_token" value="form-token">
</form></body></html>`))
	}))
	t.Cleanup(site.Close)

	client := newTestClient(site, "secret")

	err := client.UpdateProgress(context.Background(), "abc-1", 42, destinations.StatusCurrentlyReading)
	assert.ErrorIs(t, err, destinations.ErrRejected)
	assert.Empty(t, *received)
}

func TestClient_DoesNotFollowForeignRedirects(t *testing.T) {
	foreign, received := newForeignHost(t)

	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, foreign.URL+"/books", http.StatusFound)
	}))
	t.Cleanup(site.Close)

	client := newTestClient(site, "secret")

	_, err := client.SearchByISBN(context.Background(), "9780441013593")
	assert.Error(t, err)
	assert.Empty(t, *received)
}

func TestClient_Resolve(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://app.thestorygraph.com/", Cookie: "x"})

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "absolute path", path: "/books/abc-1", want: "https://app.thestorygraph.com/books/abc-1"},
		{name: "path with query", path: "/books?q=dune", want: "https://app.thestorygraph.com/books?q=dune"},
		{name: "same host URL", path: "https://app.thestorygraph.com/books/abc-1/update", want: "https://app.thestorygraph.com/books/abc-1/update"},
		{name: "foreign host", path: "https://evil.example.com/collect", wantErr: true},
		{name: "scheme relative foreign host", path: "//evil.example.com/collect", wantErr: true},
		{name: "downgraded scheme", path: "http://app.thestorygraph.com/books", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.resolve(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, destinations.ErrRejected)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseBookPage_MissingFields(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><h2 class="book-title">Untitled</h2></body></html>`))
	require.NoError(t, err)

	match := parseBookPage("x", doc)
	assert.Equal(t, "x", match.CatalogID)
	assert.Equal(t, "Untitled", match.Title)
	assert.Empty(t, match.Author)
	assert.Empty(t, match.ISBN)
}
