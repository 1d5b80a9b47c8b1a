package tracking

import (
	"time"

	"github.com/google/uuid"

	"github.com/welltrack/welltrack/internal/platform/dates"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// CustomCategoryName is the reserved category for patient-authored goals.
const CustomCategoryName = "Custom"

// Question types. Boolean, mcq and msq questions are option-backed.
const (
	TypeBoolean = "boolean"
	TypeMCQ     = "mcq"
	TypeMSQ     = "msq"
	TypeNumeric = "numeric"
	TypeText    = "text"
	TypeDate    = "date"
)

// TrackCategory maps to the track_category table.
type TrackCategory struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TrackItem maps to the track_item table. Items are goal templates
// shared across patients; custom goals are private items under the
// reserved Custom category.
type TrackItem struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	CategoryID uuid.UUID       `db:"category_id" json:"category_id"`
	Code       string          `db:"code" json:"code"`
	Name       string          `db:"name" json:"name"`
	Frequency  dates.Frequency `db:"frequency" json:"frequency"`
	Status     string          `db:"status" json:"status"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// TrackItemEntry maps to the track_item_entry table: the join between a
// patient, an item, and a bucket date. EntryDate is the normalized
// bucket date in MM-DD-YYYY wire format. At most one entry exists per
// (track_item_id, patient_id, entry_date).
type TrackItemEntry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	TrackItemID uuid.UUID `db:"track_item_id" json:"track_item_id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	EntryDate   string    `db:"entry_date" json:"entry_date"`
	Selected    bool      `db:"selected" json:"selected"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Question maps to the question table. ParentQuestionID forms a forest;
// DisplayCondition is a single-key JSON object evaluated against the
// parent's answer (see condition.go).
type Question struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TrackItemID      uuid.UUID  `db:"track_item_id" json:"track_item_id"`
	Code             string     `db:"code" json:"code"`
	Text             string     `db:"text" json:"text"`
	Type             string     `db:"qtype" json:"type"`
	Required         bool       `db:"required" json:"required"`
	SummaryTemplate  *string    `db:"summary_template" json:"summary_template,omitempty"`
	Status           string     `db:"status" json:"status"`
	ParentQuestionID *uuid.UUID `db:"parent_question_id" json:"parent_question_id,omitempty"`
	DisplayCondition *string    `db:"display_condition" json:"display_condition,omitempty"`
	SortOrder        int        `db:"sort_order" json:"sort_order"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// ResponseOption maps to the response_option table.
type ResponseOption struct {
	ID         uuid.UUID `db:"id" json:"id"`
	QuestionID uuid.UUID `db:"question_id" json:"question_id"`
	Code       string    `db:"code" json:"code"`
	Text       string    `db:"text" json:"text"`
	Status     string    `db:"status" json:"status"`
	SortOrder  int       `db:"sort_order" json:"sort_order"`
}

// TrackResponse maps to the track_response table. Answer is a
// JSON-encoded scalar or array; legacy rows may hold bare text. At most
// one response exists per (track_item_entry_id, question_id, user_id,
// patient_id); later saves update in place.
type TrackResponse struct {
	ID               uuid.UUID `db:"id" json:"id"`
	TrackItemEntryID uuid.UUID `db:"track_item_entry_id" json:"track_item_entry_id"`
	QuestionID       uuid.UUID `db:"question_id" json:"question_id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	Answer           string    `db:"answer" json:"answer"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SubscribedItem is a distinct (item, frequency) pair a patient is
// implicitly subscribed to, derived from historical selected entries.
type SubscribedItem struct {
	ItemID    uuid.UUID       `json:"item_id"`
	Frequency dates.Frequency `json:"frequency"`
}

// DatedItemRow is one aggregate row of the dated view: an active item
// joined to the patient's entry for the viewed bucket (if any) with
// completion counts over active questions.
type DatedItemRow struct {
	Item      TrackItem
	EntryID   *uuid.UUID
	Selected  bool
	Completed int
	Total     int
}

// ItemView is one item row of the patient-facing dated view.
type ItemView struct {
	Item      *TrackItem `json:"item"`
	EntryID   *uuid.UUID `json:"entry_id,omitempty"`
	Selected  bool       `json:"selected"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Summaries []string   `json:"summaries,omitempty"`
}

// CategoryView groups item views under their active category.
type CategoryView struct {
	Category *TrackCategory `json:"category"`
	Items    []*ItemView    `json:"items"`
}

// SelectableCategory groups the active items a patient can link under
// their category.
type SelectableCategory struct {
	Category *TrackCategory `json:"category"`
	Items    []*TrackItem   `json:"items"`
}

// QuestionWithOptions pairs a question with its active options, the
// patient's current answer for the entry under view, and the computed
// visibility.
type QuestionWithOptions struct {
	Question *Question         `json:"question"`
	Options  []*ResponseOption `json:"options"`
	Answer   *string           `json:"answer,omitempty"`
	Visible  bool              `json:"visible"`
}

// CustomQuestionInput describes one question of a custom goal. On edit,
// a non-nil ID mutates the existing question; a nil ID inserts a new
// one. A non-nil Options slice replaces the option set wholesale.
type CustomQuestionInput struct {
	ID              *uuid.UUID `json:"id,omitempty"`
	Text            string     `json:"text"`
	Type            string     `json:"type"`
	Options         []string   `json:"options,omitempty"`
	SummaryTemplate *string    `json:"summary_template,omitempty"`
}

// CustomGoalInput is the request body for creating or editing a custom
// goal. On edit, empty fields leave the current value untouched.
type CustomGoalInput struct {
	Name      string                `json:"name"`
	Frequency dates.Frequency       `json:"frequency,omitempty"`
	Questions []CustomQuestionInput `json:"questions,omitempty"`
}
