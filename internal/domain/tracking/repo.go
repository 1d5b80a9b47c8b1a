package tracking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get* methods when no row matches.
var ErrNotFound = errors.New("not found")

type CategoryRepository interface {
	Create(ctx context.Context, c *TrackCategory) error
	GetByID(ctx context.Context, id uuid.UUID) (*TrackCategory, error)
	GetByName(ctx context.Context, name string) (*TrackCategory, error)
	Update(ctx context.Context, c *TrackCategory) error
	ListActive(ctx context.Context) ([]*TrackCategory, error)
	// ListActivePage returns one page of active categories plus the total
	// count of active categories.
	ListActivePage(ctx context.Context, limit, offset int) ([]*TrackCategory, int, error)
}

type ItemRepository interface {
	Create(ctx context.Context, i *TrackItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*TrackItem, error)
	Update(ctx context.Context, i *TrackItem) error
	ListActive(ctx context.Context) ([]*TrackItem, error)
}

type EntryRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TrackItemEntry, error)
	Get(ctx context.Context, itemID, patientID uuid.UUID, entryDate string) (*TrackItemEntry, error)
	// UpsertSelected inserts the entry, or reactivates the existing row
	// for the same (item, patient, bucket date), as one atomic write.
	UpsertSelected(ctx context.Context, e *TrackItemEntry) error
	// DeselectAll clears selection on every entry of the (item, patient)
	// pair across all bucket dates.
	DeselectAll(ctx context.Context, itemID, patientID uuid.UUID) error
	// ListSubscribed derives the patient's implicit subscriptions: the
	// distinct active items for which any entry was ever selected.
	ListSubscribed(ctx context.Context, patientID uuid.UUID) ([]*SubscribedItem, error)
	// ListDatedView returns the aggregate rows of the dated view. The
	// three dates are the daily/weekly/monthly bucket normalizations of
	// the viewed date; each item joins the bucket matching its frequency.
	ListDatedView(ctx context.Context, patientID uuid.UUID, daily, weekly, monthly string) ([]*DatedItemRow, error)
}

type QuestionRepository interface {
	Create(ctx context.Context, q *Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*Question, error)
	Update(ctx context.Context, q *Question) error
	ListActiveByItem(ctx context.Context, itemID uuid.UUID) ([]*Question, error)
}

type OptionRepository interface {
	Create(ctx context.Context, o *ResponseOption) error
	ListActiveByQuestion(ctx context.Context, questionID uuid.UUID) ([]*ResponseOption, error)
	DeactivateByQuestion(ctx context.Context, questionID uuid.UUID) error
}

type ResponseRepository interface {
	// Upsert inserts the response, or updates the answer of the existing
	// row for the same (entry, question, user, patient).
	Upsert(ctx context.Context, r *TrackResponse) error
	ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*TrackResponse, error)
}
