package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/welltrack/welltrack/internal/platform/dates"
)

// TxRunner runs fn atomically, rolling back its repository writes when
// fn returns an error. The server wires db.WithTx here; a nil runner
// executes fn as-is.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service implements the goal-tracking and conditional-questionnaire
// engine over the repositories.
type Service struct {
	categories CategoryRepository
	items      ItemRepository
	entries    EntryRepository
	questions  QuestionRepository
	options    OptionRepository
	responses  ResponseRepository
	tx         TxRunner
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	categories CategoryRepository,
	items ItemRepository,
	entries EntryRepository,
	questions QuestionRepository,
	options OptionRepository,
	responses ResponseRepository,
	tx TxRunner,
	logger zerolog.Logger,
) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		categories: categories,
		items:      items,
		entries:    entries,
		questions:  questions,
		options:    options,
		responses:  responses,
		tx:         tx,
		logger:     logger,
		now:        time.Now,
	}
}

// MaterializeDueEntries reconciles the patient's implicit subscriptions
// with the viewed date: for each subscribed item whose frequency has a
// bucket boundary on that date, an entry for the bucket is inserted or
// reactivated. Safe to call redundantly.
func (s *Service) MaterializeDueEntries(ctx context.Context, patientID, userID uuid.UUID, date time.Time) error {
	if patientID == uuid.Nil {
		return nil
	}
	subs, err := s.entries.ListSubscribed(ctx, patientID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range subs {
		if !dates.IsBoundary(date, sub.Frequency) {
			continue
		}
		entry := &TrackItemEntry{
			TrackItemID: sub.ItemID,
			PatientID:   patientID,
			UserID:      userID,
			EntryDate:   dates.Format(dates.Bucket(date, sub.Frequency)),
		}
		if err := s.entries.UpsertSelected(ctx, entry); err != nil {
			return fmt.Errorf("materialize entry for item %s: %w", sub.ItemID, err)
		}
	}
	return nil
}

// DatedView assembles the patient-facing view for a calendar date:
// active categories, their included items with completion counts, and
// generated summaries.
func (s *Service) DatedView(ctx context.Context, patientID, userID uuid.UUID, date time.Time) ([]*CategoryView, error) {
	// Best effort: a failed materialization must not block the read.
	if err := s.MaterializeDueEntries(ctx, patientID, userID, date); err != nil {
		s.logger.Warn().Err(err).
			Str("patient_id", patientID.String()).
			Msg("entry materialization failed")
	}

	cats, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	rows, err := s.entries.ListDatedView(ctx, patientID,
		dates.Format(dates.Bucket(date, dates.Daily)),
		dates.Format(dates.Bucket(date, dates.Weekly)),
		dates.Format(dates.Bucket(date, dates.Monthly)))
	if err != nil {
		return nil, fmt.Errorf("list dated view: %w", err)
	}

	byCategory := make(map[uuid.UUID][]*ItemView)
	for _, row := range rows {
		item := row.Item
		iv := &ItemView{
			Item:      &item,
			EntryID:   row.EntryID,
			Selected:  row.Selected,
			Completed: row.Completed,
			Total:     row.Total,
		}
		if row.EntryID != nil {
			sums, err := s.Summaries(ctx, *row.EntryID)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("entry_id", row.EntryID.String()).
					Msg("summary generation failed")
			} else {
				iv.Summaries = sums
			}
		}
		byCategory[item.CategoryID] = append(byCategory[item.CategoryID], iv)
	}

	out := make([]*CategoryView, 0, len(cats))
	for _, c := range cats {
		items := byCategory[c.ID]
		if items == nil {
			items = []*ItemView{}
		}
		out = append(out, &CategoryView{Category: c, Items: items})
	}
	return out, nil
}

// SelectableCategories lists one page of the active categories a
// patient can browse, each with its active items, plus the total count
// of active categories.
func (s *Service) SelectableCategories(ctx context.Context, limit, offset int) ([]*SelectableCategory, int, error) {
	cats, total, err := s.categories.ListActivePage(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	items, err := s.items.ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	byCategory := make(map[uuid.UUID][]*TrackItem)
	for _, i := range items {
		byCategory[i.CategoryID] = append(byCategory[i.CategoryID], i)
	}
	out := make([]*SelectableCategory, 0, len(cats))
	for _, c := range cats {
		grouped := byCategory[c.ID]
		if grouped == nil {
			grouped = []*TrackItem{}
		}
		out = append(out, &SelectableCategory{Category: c, Items: grouped})
	}
	return out, total, nil
}

// QuestionsWithOptions returns the item's active questions with their
// options, the answers recorded on the entry (uuid.Nil for an
// unanswered preview), and the computed visibility of each question.
func (s *Service) QuestionsWithOptions(ctx context.Context, itemID, entryID uuid.UUID) ([]*QuestionWithOptions, error) {
	qs, err := s.questions.ListActiveByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	answers := make(map[uuid.UUID]string)
	if entryID != uuid.Nil {
		resps, err := s.responses.ListByEntry(ctx, entryID)
		if err != nil {
			return nil, fmt.Errorf("list responses: %w", err)
		}
		for _, r := range resps {
			answers[r.QuestionID] = r.Answer
		}
	}

	opts := make(map[uuid.UUID][]*ResponseOption, len(qs))
	for _, q := range qs {
		o, err := s.options.ListActiveByQuestion(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		opts[q.ID] = o
	}

	ev := NewEvaluator(qs, opts, answers, s.logger)
	out := make([]*QuestionWithOptions, 0, len(qs))
	for _, q := range qs {
		qwo := &QuestionWithOptions{
			Question: q,
			Options:  opts[q.ID],
			Visible:  ev.IsVisible(q.ID),
		}
		if qwo.Options == nil {
			qwo.Options = []*ResponseOption{}
		}
		if a, ok := answers[q.ID]; ok {
			qwo.Answer = &a
		}
		out = append(out, qwo)
	}
	return out, nil
}

// SaveResponse records (or overwrites) the patient's answer to one
// question of an entry. The answer is stored as given: a JSON-encoded
// scalar or array string.
func (s *Service) SaveResponse(ctx context.Context, entryID, questionID uuid.UUID, answer string, userID, patientID uuid.UUID) (*TrackResponse, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("answer is required")
	}
	if _, err := s.entries.GetByID(ctx, entryID); err != nil {
		return nil, fmt.Errorf("entry not found: %w", err)
	}
	if _, err := s.questions.GetByID(ctx, questionID); err != nil {
		return nil, fmt.Errorf("question not found: %w", err)
	}
	resp := &TrackResponse{
		TrackItemEntryID: entryID,
		QuestionID:       questionID,
		UserID:           userID,
		PatientID:        patientID,
		Answer:           answer,
	}
	if err := s.responses.Upsert(ctx, resp); err != nil {
		return nil, fmt.Errorf("save response: %w", err)
	}
	return resp, nil
}

// AddOption appends an active option to a question.
func (s *Service) AddOption(ctx context.Context, questionID uuid.UUID, text string) (*ResponseOption, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if _, err := s.questions.GetByID(ctx, questionID); err != nil {
		return nil, fmt.Errorf("question not found: %w", err)
	}
	existing, err := s.options.ListActiveByQuestion(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	opt := &ResponseOption{
		QuestionID: questionID,
		Code:       newCode("o"),
		Text:       text,
		Status:     StatusActive,
		SortOrder:  len(existing),
	}
	if err := s.options.Create(ctx, opt); err != nil {
		return nil, fmt.Errorf("create option: %w", err)
	}
	return opt, nil
}

// LinkItem subscribes the patient to an item: the entry for the viewed
// date's bucket is inserted or reactivated.
func (s *Service) LinkItem(ctx context.Context, itemID, patientID, userID uuid.UUID, date time.Time) (*TrackItemEntry, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("item not found: %w", err)
	}
	if item.Status != StatusActive {
		return nil, fmt.Errorf("item %s is not active", item.Code)
	}
	entry := &TrackItemEntry{
		TrackItemID: item.ID,
		PatientID:   patientID,
		UserID:      userID,
		EntryDate:   dates.Format(dates.Bucket(date, item.Frequency)),
	}
	if err := s.entries.UpsertSelected(ctx, entry); err != nil {
		return nil, fmt.Errorf("link item: %w", err)
	}
	return entry, nil
}

// UnlinkItem unsubscribes the patient from an item by deselecting every
// entry across all bucket dates. Rows and responses are kept.
func (s *Service) UnlinkItem(ctx context.Context, itemID, patientID uuid.UUID) error {
	if err := s.entries.DeselectAll(ctx, itemID, patientID); err != nil {
		return fmt.Errorf("unlink item: %w", err)
	}
	return nil
}

// Summaries renders the display strings for one entry. Questions are
// walked in authoring order; only answered, currently visible questions
// with a template contribute. Entries under the Custom category
// summarize as "last touched" instead: a single "Last updated: <date>"
// line from the most recent response.
func (s *Service) Summaries(ctx context.Context, entryID uuid.UUID) ([]string, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("entry not found: %w", err)
	}
	item, err := s.items.GetByID(ctx, entry.TrackItemID)
	if err != nil {
		return nil, fmt.Errorf("item not found: %w", err)
	}
	category, err := s.categories.GetByID(ctx, item.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("category not found: %w", err)
	}
	resps, err := s.responses.ListByEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	if category.Name == CustomCategoryName {
		if len(resps) == 0 {
			return nil, nil
		}
		latest := resps[0].UpdatedAt
		for _, r := range resps[1:] {
			if r.UpdatedAt.After(latest) {
				latest = r.UpdatedAt
			}
		}
		return []string{"Last updated: " + dates.Format(latest)}, nil
	}

	qs, err := s.questions.ListActiveByItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers := make(map[uuid.UUID]string, len(resps))
	for _, r := range resps {
		answers[r.QuestionID] = r.Answer
	}
	opts := make(map[uuid.UUID][]*ResponseOption, len(qs))
	for _, q := range qs {
		o, err := s.options.ListActiveByQuestion(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("list options: %w", err)
		}
		opts[q.ID] = o
	}

	ev := NewEvaluator(qs, opts, answers, s.logger)
	var out []string
	for _, q := range qs {
		raw, answered := answers[q.ID]
		if !answered || q.SummaryTemplate == nil || *q.SummaryTemplate == "" {
			continue
		}
		if !ev.IsVisible(q.ID) {
			continue
		}
		if text, ok := RenderSummary(*q.SummaryTemplate, raw); ok {
			out = append(out, text)
		}
	}
	return out, nil
}

// newCode mints a fresh unique identifier for items, questions and
// options.
func newCode(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}
