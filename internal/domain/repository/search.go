package repository

import (
	"math"
	"strings"
	"time"

	"github.com/oksasatya/mobile-otp-auth/internal/domain/entity"
)

// MaxPageSize is the hard ceiling applied to every directory page.
const MaxPageSize = 50

// DateLayout is the only search term format treated as a birth date.
const DateLayout = "2006-01-02"

type SearchQuery struct {
	Term     string
	Page     int
	PageSize int
}

type SearchResult struct {
	Users      []*entity.User
	TotalCount int
}

func ClampPageSize(size int) int {
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Normalized returns q with the page size clamped. Out-of-range values that
// slipped past validation are lifted to 1 so they never produce a negative
// offset or limit, and the page is capped so Offset cannot overflow. A
// capped page still lies past any real result set.
func (q SearchQuery) Normalized() SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = ClampPageSize(q.PageSize)
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if maxPage := math.MaxInt / q.PageSize; q.Page > maxPage {
		q.Page = maxPage
	}
	return q
}

func (q SearchQuery) Offset() int { return (q.Page - 1) * q.PageSize }
func (q SearchQuery) Limit() int  { return q.PageSize }

// PastEnd reports whether the page starts after the last of total matches.
func (q SearchQuery) PastEnd(total int) bool { return q.Offset() >= total }

type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterText
	FilterBirthDate
)

// SearchFilter is the parsed form of a search term.
type SearchFilter struct {
	Kind FilterKind
	Text string
	Date time.Time
}

// ParseSearchTerm classifies a raw term: blank means no filter, a YYYY-MM-DD
// value filters on that birth date, anything else is a substring match.
func ParseSearchTerm(term string) SearchFilter {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchFilter{Kind: FilterNone}
	}
	if d, err := time.Parse(DateLayout, term); err == nil {
		return SearchFilter{Kind: FilterBirthDate, Date: d}
	}
	return SearchFilter{Kind: FilterText, Text: term}
}

// DateString is the filter date formatted for storage queries.
func (f SearchFilter) DateString() string { return f.Date.Format(DateLayout) }

// Match applies the filter to a user in memory.
func (f SearchFilter) Match(u *entity.User) bool {
	switch f.Kind {
	case FilterBirthDate:
		return u.DateOfBirth().UTC().Format(DateLayout) == f.DateString()
	case FilterText:
		needle := strings.ToLower(f.Text)
		for _, hay := range []string{u.MobileNumber(), u.FirstName(), u.LastName(), u.Email()} {
			if hay != "" && strings.Contains(strings.ToLower(hay), needle) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Less orders users by last name, absent last names first, then by id.
func Less(a, b *entity.User) bool {
	if a.LastName() != b.LastName() {
		return a.LastName() < b.LastName()
	}
	return a.ID() < b.ID()
}
