package ledger

import (
	"context"
	"errors"
	"time"

	"PickLedger/internal/model"
)

// MaxPageSize caps Query page sizes.
const MaxPageSize = 100

// ErrDuplicate is returned by Insert when an entry already exists for the
// same symbol, category and calendar day.
var ErrDuplicate = errors.New("duplicate entry for symbol, category and day")

// Filter narrows entry reads. Zero values mean "no constraint". From and To
// bound EntryDate inclusively.
type Filter struct {
	From     time.Time
	To       time.Time
	Status   model.Status
	Category model.Category
}

// Page is one page of Query results.
type Page struct {
	Entries  []model.Entry
	Total    int
	Page     int
	PageSize int
}

// Store is the durable table of recommendation entries.
type Store interface {
	// Insert validates and persists a new entry, returning its id.
	Insert(ctx context.Context, e *model.Entry) (int64, error)

	// FindBySymbolCategoryDay returns the entry recorded for symbol and
	// category on day's calendar date, or nil when there is none.
	FindBySymbolCategoryDay(ctx context.Context, symbol string, category model.Category, day time.Time) (*model.Entry, error)

	// Get returns the entry with the given id or model.ErrNotFound.
	Get(ctx context.Context, id int64) (*model.Entry, error)

	// Query returns a page of entries, newest first.
	Query(ctx context.Context, f Filter, page, pageSize int) (Page, error)

	// List returns every entry matching f, newest first.
	List(ctx context.Context, f Filter) ([]model.Entry, error)

	// ListOpenSymbols returns the distinct symbols with open entries.
	ListOpenSymbols(ctx context.Context) ([]string, error)

	// UpdatePrice sets the current price on all open entries for symbol.
	UpdatePrice(ctx context.Context, symbol string, price float64, at time.Time) (int64, error)

	// ClosePosition moves an open entry to closed, setting the close
	// price, date and reason as one unit.
	ClosePosition(ctx context.Context, id int64, price float64, at time.Time, reason model.CloseReason) error

	Close() error
}
