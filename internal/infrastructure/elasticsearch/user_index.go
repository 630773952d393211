package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
	"github.com/oksasatya/mobile-otp-auth/internal/domain/repository"
)

// userMapping keeps every searchable string as a keyword so wildcard
// queries see the raw value. birth_date is the UTC calendar day of
// date_of_birth and is what birth-date searches match on.
const userMapping = `{
  "mappings": {
    "properties": {
      "id":            {"type": "keyword"},
      "mobile_number": {"type": "keyword"},
      "first_name":    {"type": "keyword"},
      "last_name":     {"type": "keyword"},
      "email":         {"type": "keyword"},
      "is_verified":   {"type": "boolean"},
      "date_of_birth": {"type": "date"},
      "birth_date":    {"type": "keyword"}
    }
  }
}`

const indexTimeout = 3 * time.Second

// UserIndex is a repository.Directory and repository.Indexer backed by a
// single Elasticsearch index.
type UserIndex struct {
	client *es.Client
	index  string
}

var (
	_ repository.Directory = (*UserIndex)(nil)
	_ repository.Indexer   = (*UserIndex)(nil)
)

func NewUserIndex(client *es.Client, index string) *UserIndex {
	return &UserIndex{client: client, index: index}
}

type userDoc struct {
	ID           string    `json:"id"`
	MobileNumber string    `json:"mobile_number"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	IsVerified   bool      `json:"is_verified"`
	DateOfBirth  time.Time `json:"date_of_birth"`
	BirthDate    string    `json:"birth_date"`
}

func toDoc(u *entity.User) userDoc {
	dob := u.DateOfBirth().UTC()
	return userDoc{
		ID:           u.ID(),
		MobileNumber: u.MobileNumber(),
		FirstName:    u.FirstName(),
		LastName:     u.LastName(),
		Email:        u.Email(),
		IsVerified:   u.IsVerified(),
		DateOfBirth:  dob,
		BirthDate:    dob.Format(repository.DateLayout),
	}
}

func (d userDoc) user() *entity.User {
	return entity.RestoreUser(entity.UserSnapshot{
		ID:           d.ID,
		MobileNumber: d.MobileNumber,
		IsVerified:   d.IsVerified,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		DateOfBirth:  d.DateOfBirth,
	})
}

// EnsureIndex creates the index with its mapping if it does not exist yet.
func (x *UserIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.index}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = x.client.Indices.Create(x.index,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(userMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.StatusCode, res.Body)
	}
	return nil
}

// Index upserts the user document. OTP state is never indexed.
func (x *UserIndex) Index(ctx context.Context, u *entity.User) error {
	body, err := json.Marshal(toDoc(u))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: x.index, DocumentID: u.ID(), Body: bytes.NewReader(body), Refresh: "wait_for"}
	c, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	res, err := req.Do(c, x.client)
	if err != nil {
		return fmt.Errorf("index user %s: %w", u.ID(), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index user", res.StatusCode, res.Body)
	}
	return nil
}

// Rebuild pages through src and indexes every user it returns.
func (x *UserIndex) Rebuild(ctx context.Context, src repository.Directory) (int, error) {
	indexed := 0
	for page := 1; ; page++ {
		res, err := src.Search(ctx, repository.SearchQuery{Page: page, PageSize: repository.MaxPageSize})
		if err != nil {
			return indexed, err
		}
		for _, u := range res.Users {
			if err := x.Index(ctx, u); err != nil {
				return indexed, err
			}
			indexed++
		}
		if len(res.Users) < repository.MaxPageSize {
			return indexed, nil
		}
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source userDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (x *UserIndex) Search(ctx context.Context, q repository.SearchQuery) (repository.SearchResult, error) {
	q = q.Normalized()
	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return repository.SearchResult{}, err
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.index),
		x.client.Search.WithBody(bytes.NewReader(body)),
		x.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return repository.SearchResult{}, fmt.Errorf("search users: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return repository.SearchResult{}, responseError("search users", res.StatusCode, res.Body)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return repository.SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	out := repository.SearchResult{TotalCount: parsed.Hits.Total.Value, Users: make([]*entity.User, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Users = append(out.Users, h.Source.user())
	}
	return out, nil
}

// maxResultWindow is the index.max_result_window default; from+size
// beyond it is rejected by Elasticsearch.
const maxResultWindow = 10000

// buildQuery renders the search request body for q.
func buildQuery(q repository.SearchQuery) map[string]any {
	from, size := q.Offset(), q.Limit()
	if from >= maxResultWindow {
		// past the window only the total is fetched
		from, size = 0, 0
	} else if from+size > maxResultWindow {
		size = maxResultWindow - from
	}

	body := map[string]any{
		"from": from,
		"size": size,
		"sort": []any{
			map[string]any{"last_name": map[string]any{"order": "asc", "missing": "_first"}},
			map[string]any{"id": map[string]any{"order": "asc"}},
		},
	}

	f := repository.ParseSearchTerm(q.Term)
	switch f.Kind {
	case repository.FilterBirthDate:
		body["query"] = map[string]any{"term": map[string]any{"birth_date": f.DateString()}}
	case repository.FilterText:
		pattern := "*" + escapeWildcard(f.Text) + "*"
		should := make([]any, 0, 4)
		for _, field := range []string{"mobile_number", "first_name", "last_name", "email"} {
			should = append(should, map[string]any{
				"wildcard": map[string]any{field: map[string]any{"value": pattern, "case_insensitive": true}},
			})
		}
		body["query"] = map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}}
	default:
		body["query"] = map[string]any{"match_all": map[string]any{}}
	}
	return body
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

func escapeWildcard(s string) string { return wildcardEscaper.Replace(s) }

func responseError(op string, status int, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	return fmt.Errorf("%s: elasticsearch status %d: %s", op, status, strings.TrimSpace(string(b)))
}
