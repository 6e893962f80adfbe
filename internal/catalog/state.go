package catalog

import "maps"

// State is the whole catalog UI state. Reduce is its only mutator.
type State struct {
	Page    int
	Movies  []Movie
	Hidden  map[int64]struct{}
	Filter  Filter
	Sort    Sort
	Loading bool
	Loaded  bool
	Err     string

	// FetchSeq identifies the fetch whose result the state accepts.
	FetchSeq uint64

	Collections Collections
}

func NewState() State {
	return State{
		Page:        MinPage,
		Filter:      Filter{Category: CategoryAll},
		Sort:        DefaultSort(),
		Collections: Collections{Comments: Comments{}},
	}
}

// Action is a state transition request. The concrete type selects the
// transition in Reduce.
type Action interface {
	isAction()
}

type (
	SetFilter struct{ Filter Filter }
	SetSort   struct{ Sort Sort }

	NextPage  struct{}
	PrevPage  struct{}
	FirstPage struct{}
	LastPage  struct{}
	GoToPage  struct{ Page int }

	FetchStarted struct {
		Seq  uint64
		Page int
	}
	FetchFinished struct {
		Seq    uint64
		Page   int
		Movies []Movie
		Err    error
	}

	HideMovie struct{ ID int64 }

	ToggleCollection struct {
		Kind  Kind
		Movie Movie
	}
	AddComment struct {
		MovieID int64
		Comment Comment
	}
	ClearCollection   struct{ Kind Kind }
	CollectionsLoaded struct{ Collections Collections }
)

func (SetFilter) isAction()         {}
func (SetSort) isAction()           {}
func (NextPage) isAction()          {}
func (PrevPage) isAction()          {}
func (FirstPage) isAction()         {}
func (LastPage) isAction()          {}
func (GoToPage) isAction()          {}
func (FetchStarted) isAction()      {}
func (FetchFinished) isAction()     {}
func (HideMovie) isAction()         {}
func (ToggleCollection) isAction()  {}
func (AddComment) isAction()        {}
func (ClearCollection) isAction()   {}
func (CollectionsLoaded) isAction() {}

const fetchErrorMessage = "Failed to load movies"

// Reduce applies a to s and returns the next state. It never mutates
// slices or maps reachable from s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case SetFilter:
		s.Filter = a.Filter
	case SetSort:
		s.Sort = a.Sort
	case NextPage:
		s.Page = nextPage(s.Page)
	case PrevPage:
		s.Page = prevPage(s.Page)
	case FirstPage:
		s.Page = MinPage
	case LastPage:
		s.Page = MaxPage
	case GoToPage:
		s.Page = ClampPage(a.Page)
	case FetchStarted:
		if a.Page != s.Page {
			return s
		}
		s.FetchSeq = a.Seq
		s.Loading = true
	case FetchFinished:
		if a.Seq != s.FetchSeq || a.Page != s.Page {
			return s
		}
		s.Loading = false
		if a.Err != nil {
			s.Err = fetchErrorMessage
			return s
		}
		s.Err = ""
		s.Loaded = true
		s.Movies = a.Movies
		s.Hidden = nil
	case HideMovie:
		hidden := maps.Clone(s.Hidden)
		if hidden == nil {
			hidden = map[int64]struct{}{}
		}
		hidden[a.ID] = struct{}{}
		s.Hidden = hidden
	case ToggleCollection:
		s.Collections.set(a.Kind, s.Collections.Of(a.Kind).Toggle(a.Movie))
	case AddComment:
		s.Collections.Comments = s.Collections.Comments.With(a.MovieID, a.Comment)
	case ClearCollection:
		s.Collections.set(a.Kind, nil)
	case CollectionsLoaded:
		s.Collections = a.Collections
	}
	return s
}

// View is the derived, render-ready projection of a State.
type View struct {
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
	Filter     Filter       `json:"filter"`
	Sort       Sort         `json:"sort"`
	Movies     []MovieView  `json:"movies"`
	NoResults  bool         `json:"no_results"`
	Loading    bool         `json:"loading"`
	Error      string       `json:"error,omitempty"`
	Counts     ViewCounters `json:"counts"`
}

// MovieView decorates a movie with its collection membership.
type MovieView struct {
	Movie
	InWatchlist bool `json:"in_watchlist"`
	Liked       bool `json:"liked"`
	Saved       bool `json:"saved"`
	Comments    int  `json:"comments"`
}

type ViewCounters struct {
	Watchlist int `json:"watchlist"`
	Liked     int `json:"liked"`
	Saved     int `json:"saved"`
}

// Visible is the filtered and sorted page with hidden movies removed.
func (s *State) Visible() []Movie {
	page := make([]Movie, 0, len(s.Movies))
	for i := range s.Movies {
		if _, hidden := s.Hidden[s.Movies[i].ID]; !hidden {
			page = append(page, s.Movies[i])
		}
	}
	return s.Sort.Apply(s.Filter.Apply(page), s.Movies)
}

// View derives the render model. NoResults is only set once a page has been
// loaded, so an initial empty state reads as loading rather than empty.
func (s *State) View() View {
	visible := s.Visible()
	out := View{
		Page:       s.Page,
		TotalPages: MaxPage,
		Filter:     s.Filter,
		Sort:       s.Sort,
		Movies:     make([]MovieView, 0, len(visible)),
		NoResults:  s.Loaded && len(visible) == 0,
		Loading:    s.Loading,
		Error:      s.Err,
		Counts: ViewCounters{
			Watchlist: len(s.Collections.Watchlist),
			Liked:     len(s.Collections.Liked),
			Saved:     len(s.Collections.Saved),
		},
	}
	for i := range visible {
		out.Movies = append(out.Movies, s.decorate(visible[i]))
	}
	return out
}

func (s *State) decorate(m Movie) MovieView {
	return MovieView{
		Movie:       m,
		InWatchlist: s.Collections.Watchlist.Contains(m.ID),
		Liked:       s.Collections.Liked.Contains(m.ID),
		Saved:       s.Collections.Saved.Contains(m.ID),
		Comments:    len(s.Collections.Comments[m.ID]),
	}
}

// lookup finds a movie on the current page or in any collection.
func (s *State) lookup(id int64) (Movie, bool) {
	for i := range s.Movies {
		if s.Movies[i].ID == id {
			return s.Movies[i], true
		}
	}
	return s.Collections.Find(id)
}
