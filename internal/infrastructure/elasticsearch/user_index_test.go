package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository/repotest"
	"github.com/oksasatya/mobile-otp-auth/internal/infrastructure/memory"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeES answers every request with the queued responses in order and
// records what it was sent.
type fakeES struct {
	mu        sync.Mutex
	requests  []recorded
	responses []fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(b)})
	resp := fakeResponse{status: http.StatusOK, body: `{}`}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func newTestIndex(t *testing.T, responses ...fakeResponse) (*UserIndex, *fakeES) {
	t.Helper()
	fake := &fakeES{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewUserIndex(client, "users"), fake
}

func decodeBody(t *testing.T, body string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestIndex_SendsDocumentWithoutOtp(t *testing.T) {
	ix, fake := newTestIndex(t, fakeResponse{status: http.StatusCreated, body: `{"result":"created"}`})

	u := repotest.Profile("11111111-1111-1111-1111-111111111111", "09123456789", "John", "Doe", "john.doe@example.com",
		time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, u.SetOtp("hash", time.Now()))

	require.NoError(t, ix.Index(context.Background(), u))

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/users/_doc/11111111-1111-1111-1111-111111111111", req.Path)
	assert.Contains(t, req.Query, "refresh=wait_for")

	doc := decodeBody(t, req.Body)
	assert.Equal(t, "09123456789", doc["mobile_number"])
	assert.Equal(t, "Doe", doc["last_name"])
	assert.Equal(t, "1990-01-01", doc["birth_date"])
	assert.NotContains(t, req.Body, "hash")
}

func TestIndex_OmitsAbsentProfileFields(t *testing.T) {
	ix, fake := newTestIndex(t)
	u, err := entity.NewUser("09123456789")
	require.NoError(t, err)

	require.NoError(t, ix.Index(context.Background(), u))
	doc := decodeBody(t, fake.requests[0].Body)
	assert.NotContains(t, doc, "last_name")
	assert.NotContains(t, doc, "email")
	assert.Equal(t, "1900-01-01", doc["birth_date"])
}

func TestIndex_ErrorStatus(t *testing.T) {
	ix, _ := newTestIndex(t, fakeResponse{status: http.StatusBadRequest, body: `{"error":"mapper_parsing_exception"}`})
	u, err := entity.NewUser("09123456789")
	require.NoError(t, err)

	err = ix.Index(context.Background(), u)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

const searchHits = `{
  "hits": {
    "total": {"value": 7, "relation": "eq"},
    "hits": [
      {"_source": {"id": "5", "mobile_number": "09567890123", "first_name": "Charlie", "last_name": "Brown",
                   "email": "charlie.brown@example.com", "is_verified": true,
                   "date_of_birth": "1995-07-10T00:00:00Z", "birth_date": "1995-07-10"}},
      {"_source": {"id": "1", "mobile_number": "09123456789", "first_name": "John", "last_name": "Doe",
                   "email": "john.doe@example.com", "is_verified": false,
                   "date_of_birth": "1990-01-01T00:00:00Z", "birth_date": "1990-01-01"}}
    ]
  }
}`

func TestSearch_TextQuery(t *testing.T) {
	ix, fake := newTestIndex(t, fakeResponse{status: http.StatusOK, body: searchHits})

	res, err := ix.Search(context.Background(), repository.SearchQuery{Term: " Jo*n ", Page: 2, PageSize: 5})
	require.NoError(t, err)

	assert.Equal(t, 7, res.TotalCount)
	require.Len(t, res.Users, 2)
	assert.Equal(t, "Brown", res.Users[0].LastName())
	assert.Equal(t, "09123456789", res.Users[1].MobileNumber())
	assert.Equal(t, time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), res.Users[1].DateOfBirth())
	assert.False(t, res.Users[1].HasPendingOtp())

	req := fake.requests[0]
	assert.True(t, strings.HasSuffix(req.Path, "/users/_search"))
	assert.Contains(t, req.Query, "track_total_hits=true")

	body := decodeBody(t, req.Body)
	assert.EqualValues(t, 5, body["from"])
	assert.EqualValues(t, 5, body["size"])
	assert.Contains(t, req.Body, `"missing":"_first"`)

	should := body["query"].(map[string]any)["bool"].(map[string]any)["should"].([]any)
	require.Len(t, should, 4)
	wc := should[2].(map[string]any)["wildcard"].(map[string]any)["last_name"].(map[string]any)
	assert.Equal(t, `*Jo\*n*`, wc["value"])
	assert.Equal(t, true, wc["case_insensitive"])
}

func TestSearch_BirthDateAndClamp(t *testing.T) {
	ix, fake := newTestIndex(t, fakeResponse{status: http.StatusOK, body: `{"hits":{"total":{"value":0},"hits":[]}}`})

	res, err := ix.Search(context.Background(), repository.SearchQuery{Term: "1985-05-15", Page: 1, PageSize: 500})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
	assert.NotNil(t, res.Users)

	body := decodeBody(t, fake.requests[0].Body)
	assert.EqualValues(t, repository.MaxPageSize, body["size"])
	assert.EqualValues(t, 0, body["from"])
	term := body["query"].(map[string]any)["term"].(map[string]any)
	assert.Equal(t, "1985-05-15", term["birth_date"])
}

func TestSearch_NoTermMatchesAll(t *testing.T) {
	ix, fake := newTestIndex(t, fakeResponse{status: http.StatusOK, body: `{"hits":{"total":{"value":0},"hits":[]}}`})

	_, err := ix.Search(context.Background(), repository.SearchQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Contains(t, fake.requests[0].Body, `"match_all":{}`)
}

func TestSearch_HugePageFetchesOnlyTotal(t *testing.T) {
	ix, fake := newTestIndex(t, fakeResponse{status: http.StatusOK, body: `{"hits":{"total":{"value":7},"hits":[]}}`})

	res, err := ix.Search(context.Background(), repository.SearchQuery{Page: math.MaxInt, PageSize: 50})
	require.NoError(t, err)
	assert.Equal(t, 7, res.TotalCount)
	assert.Empty(t, res.Users)

	body := decodeBody(t, fake.requests[0].Body)
	assert.EqualValues(t, 0, body["from"])
	assert.EqualValues(t, 0, body["size"])
}

func TestBuildQuery_ResultWindow(t *testing.T) {
	cases := []struct {
		page, size int
		from, want int
	}{
		{page: 1, size: 10, from: 0, want: 10},
		{page: 200, size: 50, from: 9950, want: 50},
		{page: 3334, size: 3, from: 9999, want: 1},
		{page: 201, size: 50, from: 0, want: 0},
		{page: math.MaxInt, size: 50, from: 0, want: 0},
		{page: math.MaxInt/50 + 2, size: 50, from: 0, want: 0},
	}
	for _, tc := range cases {
		body := buildQuery(repository.SearchQuery{Page: tc.page, PageSize: tc.size}.Normalized())
		assert.Equal(t, tc.from, body["from"], "page %d size %d", tc.page, tc.size)
		assert.Equal(t, tc.want, body["size"], "page %d size %d", tc.page, tc.size)
	}
}

func TestSearch_ErrorStatus(t *testing.T) {
	ix, _ := newTestIndex(t, fakeResponse{status: http.StatusNotFound, body: `{"error":"index_not_found_exception"}`})

	_, err := ix.Search(context.Background(), repository.SearchQuery{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index_not_found_exception")
}

func TestEnsureIndex(t *testing.T) {
	t.Run("exists", func(t *testing.T) {
		ix, fake := newTestIndex(t, fakeResponse{status: http.StatusOK, body: ``})
		require.NoError(t, ix.EnsureIndex(context.Background()))
		require.Len(t, fake.requests, 1)
		assert.Equal(t, http.MethodHead, fake.requests[0].Method)
	})

	t.Run("creates", func(t *testing.T) {
		ix, fake := newTestIndex(t,
			fakeResponse{status: http.StatusNotFound, body: ``},
			fakeResponse{status: http.StatusOK, body: `{"acknowledged":true}`},
		)
		require.NoError(t, ix.EnsureIndex(context.Background()))
		require.Len(t, fake.requests, 2)
		assert.Equal(t, http.MethodPut, fake.requests[1].Method)
		assert.Equal(t, "/users", fake.requests[1].Path)
		assert.Contains(t, fake.requests[1].Body, `"birth_date"`)
	})
}

func TestRebuild_IndexesEveryUser(t *testing.T) {
	store := memory.NewStore()
	for _, u := range repotest.Directory() {
		require.NoError(t, store.Users().Add(context.Background(), u))
	}
	ix, fake := newTestIndex(t)

	n, err := ix.Rebuild(context.Background(), store.Users())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, fake.requests, 5)
}

func TestEscapeWildcard(t *testing.T) {
	assert.Equal(t, `a\*b\?c\\d`, escapeWildcard(`a*b?c\d`))
	assert.Equal(t, "plain", escapeWildcard("plain"))
}
