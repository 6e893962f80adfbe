package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names one of the movie collections.
type Kind string

const (
	KindWatchlist Kind = "watchlist"
	KindLiked     Kind = "liked"
	KindSaved     Kind = "saved"
)

const commentsKey = "comments"

func ParseKind(raw string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindWatchlist, KindLiked, KindSaved:
		return k, true
	default:
		return "", false
	}
}

// StorageKey is the key the collection is persisted under.
func (k Kind) StorageKey() string {
	if k == KindSaved {
		return "saveList"
	}
	return string(k)
}

// Collection is an insertion-ordered set of movies keyed by id.
type Collection []Movie

func (c Collection) Contains(id int64) bool {
	_, ok := c.Find(id)
	return ok
}

func (c Collection) Find(id int64) (Movie, bool) {
	for i := range c {
		if c[i].ID == id {
			return c[i], true
		}
	}
	return Movie{}, false
}

// Toggle removes m when present (by id) and appends it otherwise.
// The receiver is left untouched.
func (c Collection) Toggle(m Movie) Collection {
	if c.Contains(m.ID) {
		return slices.DeleteFunc(slices.Clone(c), func(x Movie) bool { return x.ID == m.ID })
	}
	out := make(Collection, 0, len(c)+1)
	out = append(out, c...)
	return append(out, m)
}

func (c Collection) IDs() []int64 {
	out := make([]int64, 0, len(c))
	for i := range c {
		out = append(out, c[i].ID)
	}
	return out
}

type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewComment validates text and stamps the entry.
func NewComment(text string, at time.Time) (Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Comment{}, ErrEmptyComment
	}
	return Comment{ID: uuid.NewString(), Text: text, Timestamp: at.UTC()}, nil
}

// Comments maps a movie id to its comments, oldest first.
type Comments map[int64][]Comment

// With returns a copy of c with cm appended to movieID's list.
func (c Comments) With(movieID int64, cm Comment) Comments {
	out := maps.Clone(c)
	if out == nil {
		out = Comments{}
	}
	list := make([]Comment, 0, len(c[movieID])+1)
	list = append(list, c[movieID]...)
	out[movieID] = append(list, cm)
	return out
}

// Collections is every user-curated collection.
type Collections struct {
	Watchlist Collection `json:"watchlist"`
	Liked     Collection `json:"liked"`
	Saved     Collection `json:"saved"`
	Comments  Comments   `json:"comments"`
}

func (c *Collections) Of(kind Kind) Collection {
	switch kind {
	case KindWatchlist:
		return c.Watchlist
	case KindLiked:
		return c.Liked
	case KindSaved:
		return c.Saved
	}
	return nil
}

func (c *Collections) set(kind Kind, col Collection) {
	switch kind {
	case KindWatchlist:
		c.Watchlist = col
	case KindLiked:
		c.Liked = col
	case KindSaved:
		c.Saved = col
	}
}

// Find looks a movie up in any collection.
func (c *Collections) Find(id int64) (Movie, bool) {
	for _, kind := range []Kind{KindWatchlist, KindLiked, KindSaved} {
		if m, ok := c.Of(kind).Find(id); ok {
			return m, true
		}
	}
	return Movie{}, false
}

// LoadCollections reads every collection from st. Each key loads on its own;
// a missing, unreadable or malformed value leaves that collection empty.
func LoadCollections(ctx context.Context, st Storage, log *slog.Logger) Collections {
	out := Collections{Comments: Comments{}}
	for _, kind := range []Kind{KindWatchlist, KindLiked, KindSaved} {
		var col Collection
		if loadJSON(ctx, st, log, kind.StorageKey(), &col) {
			out.set(kind, col)
		}
	}
	var comments Comments
	if loadJSON(ctx, st, log, commentsKey, &comments) && comments != nil {
		out.Comments = comments
	}
	return out
}

func loadJSON(ctx context.Context, st Storage, log *slog.Logger, key string, dst any) bool {
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		log.Warn("load collection failed", slog.String("key", key), slog.Any("err", err))
		return false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		log.Warn("discarding malformed collection", slog.String("key", key), slog.Any("err", err))
		return false
	}
	return true
}

func saveCollection(ctx context.Context, st Storage, kind Kind, col Collection) error {
	if col == nil {
		col = Collection{}
	}
	return saveJSON(ctx, st, kind.StorageKey(), col)
}

func saveComments(ctx context.Context, st Storage, comments Comments) error {
	if comments == nil {
		comments = Comments{}
	}
	return saveJSON(ctx, st, commentsKey, comments)
}

func saveJSON(ctx context.Context, st Storage, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := st.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}
