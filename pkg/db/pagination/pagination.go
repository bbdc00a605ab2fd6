package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor points at the last row of a page ordered by created_at desc, id desc.
type Cursor struct {
	ID        int64
	CreatedAt time.Time
}

type cursorToken struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(cursorToken{
		ID:        strconv.FormatInt(c.ID, 10),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var raw cursorToken
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, ErrInvalidPageToken
	}
	id, err := strconv.ParseInt(raw.ID, 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	return &Cursor{ID: id, CreatedAt: createdAt}, nil
}

// PageSize clamps a requested size to [1, MaxPageSize]; zero or less means
// DefaultPageSize.
func PageSize(requested int) int {
	switch {
	case requested <= 0:
		return DefaultPageSize
	case requested > MaxPageSize:
		return MaxPageSize
	}
	return requested
}

// Keyset resumes a newest-first listing after cursor. It fetches one row past
// limit so Trim can tell whether another page exists.
func Keyset(cursor *Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
				cursor.CreatedAt,
				cursor.CreatedAt,
				cursor.ID,
			)
		}
		db = db.Order("created_at desc, id desc")
		if limit > 0 {
			db = db.Limit(limit + 1)
		}
		return db
	}
}

// Trim cuts a Keyset result down to size and builds the page info.
func Trim[T any](items []T, size int, cursorOf func(T) Cursor) ([]T, PageInfo, error) {
	if len(items) <= size {
		return items, PageInfo{}, nil
	}
	items = items[:size]
	token, err := EncodeCursor(cursorOf(items[len(items)-1]))
	if err != nil {
		return nil, PageInfo{}, err
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}, nil
}
