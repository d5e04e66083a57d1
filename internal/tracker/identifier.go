package tracker

import (
	"strconv"
	"strings"
)

// Identifier names a job either by numeric id or by its user-assigned slug.
// The zero value is not a valid identifier.
type Identifier struct {
	id      int64
	slug    string
	numeric bool
}

func ByID(id int64) Identifier {
	return Identifier{id: id, numeric: true}
}

func BySlug(slug string) Identifier {
	return Identifier{slug: slug}
}

// ParseIdentifier decides once, at the boundary, how a token addresses a job.
// A token is numeric only when it is exactly the canonical decimal form of an
// int64, so "42" is an id while "042" and "+42" are slugs.
func ParseIdentifier(token string) (Identifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identifier{}, invalid("empty job identifier")
	}
	if n, err := strconv.ParseInt(token, 10, 64); err == nil && strconv.FormatInt(n, 10) == token {
		return ByID(n), nil
	}
	return BySlug(token), nil
}

// ID returns the numeric id and true when the identifier is numeric.
func (i Identifier) ID() (int64, bool) {
	return i.id, i.numeric
}

// Slug returns the slug and true when the identifier is a slug.
func (i Identifier) Slug() (string, bool) {
	return i.slug, !i.numeric && i.slug != ""
}

func (i Identifier) String() string {
	if i.numeric {
		return strconv.FormatInt(i.id, 10)
	}
	return i.slug
}
