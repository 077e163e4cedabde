package domain

import (
	"context"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultPageSize applies when the caller leaves the page size unset.
	DefaultPageSize = 10
	// MaxPageSize caps the page size.
	MaxPageSize = 50
)

// FeedFilter is the per-request feed query as supplied by the caller.
type FeedFilter struct {
	ViewerID   string
	StartDate  *time.Time
	IsGoing    bool
	IsHost     bool
	PageNumber int
	PageSize   int
}

// Validate requires positive paging values. Zero means unset.
func (f FeedFilter) Validate() error {
	if f.PageNumber < 0 || f.PageSize < 0 {
		return fmt.Errorf("%w: pageNumber and pageSize must be positive", ErrValidation)
	}
	return nil
}

// FeedRestriction is the single membership filter a feed query applies.
type FeedRestriction int

const (
	RestrictNone FeedRestriction = iota
	RestrictGoing
	RestrictHosting
)

// Restriction resolves the two flags. They are not independently composable:
// setting both yields no restriction at all.
func (f FeedFilter) Restriction() FeedRestriction {
	switch {
	case f.IsGoing && !f.IsHost:
		return RestrictGoing
	case f.IsHost && !f.IsGoing:
		return RestrictHosting
	default:
		return RestrictNone
	}
}

// FeedQuery is the normalised query handed to the store.
type FeedQuery struct {
	ViewerID    string
	StartDate   *time.Time
	Restriction FeedRestriction
	Offset      int
	Limit       int
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items       []T
	CurrentPage int
	PageSize    int
	TotalCount  int
	TotalPages  int
}

// NewPage assembles a page and derives the total page count.
func NewPage[T any](items []T, pageNumber, pageSize, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:       items,
		CurrentPage: pageNumber,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  TotalPages(total, pageSize),
	}
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func normalisePaging(pageNumber, pageSize int) (int, int) {
	if pageNumber == 0 {
		pageNumber = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageNumber, pageSize
}

// pageOffset saturates at math.MaxInt so huge page numbers land past the end
// instead of wrapping negative.
func pageOffset(pageNumber, pageSize int) int {
	if pageNumber-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (pageNumber - 1) * pageSize
}

// ListActivities returns one page of the viewer-relative feed ordered by date.
// A page past the end is empty rather than an error.
func (s *Service) ListActivities(ctx context.Context, filter FeedFilter) Result[Page[ActivityView]] {
	if err := filter.Validate(); err != nil {
		return FailWith[Page[ActivityView]](err)
	}
	started := time.Now()
	defer func() { feedQueryDuration.Observe(time.Since(started).Seconds()) }()

	pageNumber, pageSize := normalisePaging(filter.PageNumber, filter.PageSize)
	query := FeedQuery{
		ViewerID:    filter.ViewerID,
		StartDate:   filter.StartDate,
		Restriction: filter.Restriction(),
		Offset:      pageOffset(pageNumber, pageSize),
		Limit:       pageSize,
	}
	if query.ViewerID == "" {
		query.Restriction = RestrictNone
	}

	records, total, err := s.store.ListActivities(ctx, query)
	if err != nil {
		s.logger.Printf("list activities: %v", err)
		return FailWith[Page[ActivityView]](err)
	}
	views := make([]ActivityView, 0, len(records))
	for _, rec := range records {
		views = append(views, toActivityView(rec, filter.ViewerID))
	}
	return Succeed(NewPage(views, pageNumber, pageSize, total))
}
