package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"
)

const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultTopCount     = 5
	DefaultRandomCount  = 5
)

// Catalog is the view model. It owns a State, drives page fetches against a
// Source and mirrors collection changes into a Storage.
type Catalog struct {
	source  Source
	storage Storage
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu     sync.Mutex
	state  State
	seq    uint64
	cancel context.CancelFunc
}

type Option func(*Catalog)

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.log = l
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a catalog and loads the persisted collections. It does not
// fetch; the first page is loaded by EnsureLoaded or any navigation.
func New(ctx context.Context, source Source, storage Storage, opts ...Option) (*Catalog, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	c := &Catalog{
		source:  source,
		storage: storage,
		log:     slog.Default(),
		timeout: DefaultFetchTimeout,
		now:     time.Now,
		state:   NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = Reduce(c.state, CollectionsLoaded{Collections: LoadCollections(ctx, storage, c.log)})
	return c, nil
}

// State returns a snapshot. Reduce never mutates shared data, so the
// snapshot stays valid after later transitions.
func (c *Catalog) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Catalog) View() View {
	s := c.State()
	return s.View()
}

func (c *Catalog) Collections() Collections {
	s := c.State()
	return s.Collections
}

// Dispatch applies a and persists the collection it touched. Page actions
// only move the cursor here; use Navigate to also fetch.
func (c *Catalog) Dispatch(ctx context.Context, a Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	return c.persistLocked(ctx, a)
}

func (c *Catalog) persistLocked(ctx context.Context, a Action) error {
	var err error
	switch a := a.(type) {
	case ToggleCollection:
		err = saveCollection(ctx, c.storage, a.Kind, c.state.Collections.Of(a.Kind))
	case AddComment:
		err = saveComments(ctx, c.storage, c.state.Collections.Comments)
	case ClearCollection:
		err = c.storage.Remove(ctx, a.Kind.StorageKey())
	default:
		return nil
	}
	if err != nil {
		c.log.Warn("persist collection failed", slog.Any("err", err))
	}
	return err
}

// EnsureLoaded fetches the current page unless one is loaded or in flight.
func (c *Catalog) EnsureLoaded(ctx context.Context) (View, error) {
	c.mu.Lock()
	idle := !c.state.Loaded && !c.state.Loading
	page := c.state.Page
	c.mu.Unlock()
	if !idle {
		return c.View(), nil
	}
	err := c.fetch(ctx, page)
	return c.View(), err
}

// Navigate applies a page action and fetches the resulting page. Moving to
// the page that is already loaded does not refetch.
func (c *Catalog) Navigate(ctx context.Context, a Action) (View, error) {
	switch a.(type) {
	case NextPage, PrevPage, FirstPage, LastPage, GoToPage:
	default:
		return c.View(), fmt.Errorf("not a page action: %T", a)
	}

	c.mu.Lock()
	prev := c.state.Page
	c.state = Reduce(c.state, a)
	page := c.state.Page
	unchanged := page == prev && (c.state.Loaded || c.state.Loading)
	c.mu.Unlock()

	if unchanged {
		return c.View(), nil
	}
	err := c.fetch(ctx, page)
	return c.View(), err
}

// GoTo parses free-form page input. Rejected input leaves the page as is.
func (c *Catalog) GoTo(ctx context.Context, input string) (View, error) {
	page, err := ParsePage(input)
	if err != nil {
		return c.View(), err
	}
	return c.Navigate(ctx, GoToPage{Page: page})
}

// Reload refetches the current page, e.g. after a failed fetch.
func (c *Catalog) Reload(ctx context.Context) (View, error) {
	c.mu.Lock()
	page := c.state.Page
	c.mu.Unlock()
	err := c.fetch(ctx, page)
	return c.View(), err
}

// fetch loads page. Each call gets a sequence number; starting a new fetch
// cancels the one in flight, and a result is only applied while both its
// sequence and page still match the state. Superseded results return
// ErrStaleFetch, as does a fetch for a page the state has already left;
// that one starts nothing and leaves the in-flight fetch running.
func (c *Catalog) fetch(ctx context.Context, page int) error {
	c.mu.Lock()
	if current := c.state.Page; page != current {
		c.mu.Unlock()
		c.log.Debug("skipping fetch for abandoned page", slog.Int("page", page), slog.Int("current", current))
		return ErrStaleFetch
	}
	c.seq++
	seq := c.seq
	if c.cancel != nil {
		c.cancel()
	}
	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.state = Reduce(c.state, FetchStarted{Seq: seq, Page: page})
	c.mu.Unlock()
	defer cancel()

	c.log.Debug("fetching page", slog.Int("page", page), slog.Uint64("seq", seq))
	movies, err := c.source.DiscoverPage(fctx, page)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.state.FetchSeq || page != c.state.Page {
		c.log.Debug("discarding stale page", slog.Int("page", page), slog.Uint64("seq", seq))
		return ErrStaleFetch
	}
	c.state = Reduce(c.state, FetchFinished{Seq: seq, Page: page, Movies: movies, Err: err})
	if err != nil {
		c.log.Warn("fetch page failed", slog.Int("page", page), slog.Any("err", err))
		return fmt.Errorf("fetch page %d: %w", page, err)
	}
	return nil
}

// SetFilter validates and applies new filter parameters.
func (c *Catalog) SetFilter(ctx context.Context, f Filter) (View, error) {
	f, err := f.Normalize()
	if err != nil {
		return c.View(), err
	}
	if f.MinRating != nil && (*f.MinRating < 0 || *f.MinRating > 10) {
		return c.View(), fmt.Errorf("min rating %v out of range [0, 10]", *f.MinRating)
	}
	err = c.Dispatch(ctx, SetFilter{Filter: f})
	return c.View(), err
}

// SetSort validates the mode and weights and applies them. Weights are
// rebuilt from the popularity share so the pair always sums to one.
func (c *Catalog) SetSort(ctx context.Context, s Sort) (View, error) {
	mode, err := ParseSortMode(string(s.Mode))
	if err != nil {
		return c.View(), err
	}
	w, err := NewWeights(s.Weights.Popularity)
	if err != nil {
		return c.View(), err
	}
	err = c.Dispatch(ctx, SetSort{Sort: Sort{Mode: mode, Weights: w}})
	return c.View(), err
}

// Hide drops a movie from the current page's view until the next page load.
func (c *Catalog) Hide(ctx context.Context, id int64) error {
	s := c.State()
	if !slices.ContainsFunc(s.Movies, func(m Movie) bool { return m.ID == id }) {
		return ErrNotFound
	}
	return c.Dispatch(ctx, HideMovie{ID: id})
}

// Toggle flips id's membership in kind and reports the new membership.
// The movie is looked up on the current page first, then in the collections,
// so entries can be removed after the page has moved on.
func (c *Catalog) Toggle(ctx context.Context, kind Kind, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.state.lookup(id)
	if !ok {
		return false, ErrNotFound
	}
	a := ToggleCollection{Kind: kind, Movie: m}
	c.state = Reduce(c.state, a)
	member := c.state.Collections.Of(kind).Contains(id)
	return member, c.persistLocked(ctx, a)
}

// Clear empties kind and removes its storage key.
func (c *Catalog) Clear(ctx context.Context, kind Kind) error {
	return c.Dispatch(ctx, ClearCollection{Kind: kind})
}

// Comment appends a comment for movieID. Comments can only be added.
func (c *Catalog) Comment(ctx context.Context, movieID int64, text string) (Comment, error) {
	cm, err := NewComment(text, c.now())
	if err != nil {
		return Comment{}, err
	}
	return cm, c.Dispatch(ctx, AddComment{MovieID: movieID, Comment: cm})
}

func (c *Catalog) Comments(movieID int64) []Comment {
	s := c.State()
	return slices.Clone(s.Collections.Comments[movieID])
}

// Top returns the first n movies of the current view.
func (c *Catalog) Top(n int) []MovieView {
	v := c.View()
	if n <= 0 || n > len(v.Movies) {
		n = len(v.Movies)
	}
	return v.Movies[:n]
}

// RandomPicks returns up to n random movies from the fetched page,
// ignoring filters.
func (c *Catalog) RandomPicks(n int) []Movie {
	s := c.State()
	picks := slices.Clone(s.Movies)
	rand.Shuffle(len(picks), func(i, j int) { picks[i], picks[j] = picks[j], picks[i] })
	if n < 0 {
		n = 0
	}
	return picks[:min(n, len(picks))]
}

// Lookup finds a movie on the current page or in any collection.
func (c *Catalog) Lookup(id int64) (Movie, bool) {
	s := c.State()
	return s.lookup(id)
}
