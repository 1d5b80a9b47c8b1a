package tracking

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/welltrack/welltrack/internal/platform/dates"
)

// ── Mock Repositories ──

// mockStore backs all mock repositories; the dated-view aggregation
// crosses entities, so the maps are shared.
type mockStore struct {
	categories map[uuid.UUID]*TrackCategory
	items      map[uuid.UUID]*TrackItem
	entries    map[uuid.UUID]*TrackItemEntry
	questions  map[uuid.UUID]*Question
	options    map[uuid.UUID]*ResponseOption
	responses  map[uuid.UUID]*TrackResponse
}

func newMockStore() *mockStore {
	return &mockStore{
		categories: map[uuid.UUID]*TrackCategory{},
		items:      map[uuid.UUID]*TrackItem{},
		entries:    map[uuid.UUID]*TrackItemEntry{},
		questions:  map[uuid.UUID]*Question{},
		options:    map[uuid.UUID]*ResponseOption{},
		responses:  map[uuid.UUID]*TrackResponse{},
	}
}

func (s *mockStore) addCategory(name, status string) *TrackCategory {
	c := &TrackCategory{ID: uuid.New(), Name: name, Status: status, CreatedAt: time.Now()}
	s.categories[c.ID] = c
	return c
}

func (s *mockStore) addItem(categoryID uuid.UUID, name string, freq dates.Frequency) *TrackItem {
	i := &TrackItem{ID: uuid.New(), CategoryID: categoryID, Code: newCode("ti"), Name: name, Frequency: freq, Status: StatusActive, CreatedAt: time.Now()}
	s.items[i.ID] = i
	return i
}

func (s *mockStore) addEntry(itemID, patientID uuid.UUID, date string, selected bool) *TrackItemEntry {
	e := &TrackItemEntry{ID: uuid.New(), TrackItemID: itemID, PatientID: patientID, EntryDate: date, Selected: selected, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.entries[e.ID] = e
	return e
}

func (s *mockStore) addQuestion(itemID uuid.UUID, text string, template *string, sortOrder int) *Question {
	q := &Question{ID: uuid.New(), TrackItemID: itemID, Code: newCode("q"), Text: text, Type: TypeBoolean, SummaryTemplate: template, Status: StatusActive, SortOrder: sortOrder, CreatedAt: time.Now()}
	s.questions[q.ID] = q
	return q
}

func (s *mockStore) activeQuestionsByItem(itemID uuid.UUID) []*Question {
	var out []*Question
	for _, q := range s.questions {
		if q.TrackItemID == itemID && q.Status == StatusActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type mockCategoryRepo struct{ s *mockStore }

func (m *mockCategoryRepo) Create(_ context.Context, c *TrackCategory) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.s.categories[c.ID] = c
	return nil
}
func (m *mockCategoryRepo) GetByID(_ context.Context, id uuid.UUID) (*TrackCategory, error) {
	if c, ok := m.s.categories[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}
func (m *mockCategoryRepo) GetByName(_ context.Context, name string) (*TrackCategory, error) {
	for _, c := range m.s.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, ErrNotFound
}
func (m *mockCategoryRepo) Update(_ context.Context, c *TrackCategory) error {
	if _, ok := m.s.categories[c.ID]; !ok {
		return ErrNotFound
	}
	m.s.categories[c.ID] = c
	return nil
}
func (m *mockCategoryRepo) ListActive(_ context.Context) ([]*TrackCategory, error) {
	var out []*TrackCategory
	for _, c := range m.s.categories {
		if c.Status == StatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
func (m *mockCategoryRepo) ListActivePage(ctx context.Context, limit, offset int) ([]*TrackCategory, int, error) {
	all, _ := m.ListActive(ctx)
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockItemRepo struct{ s *mockStore }

func (m *mockItemRepo) Create(_ context.Context, i *TrackItem) error {
	i.ID = uuid.New()
	i.CreatedAt = time.Now()
	m.s.items[i.ID] = i
	return nil
}
func (m *mockItemRepo) GetByID(_ context.Context, id uuid.UUID) (*TrackItem, error) {
	if i, ok := m.s.items[id]; ok {
		return i, nil
	}
	return nil, ErrNotFound
}
func (m *mockItemRepo) Update(_ context.Context, i *TrackItem) error {
	if _, ok := m.s.items[i.ID]; !ok {
		return ErrNotFound
	}
	m.s.items[i.ID] = i
	return nil
}
func (m *mockItemRepo) ListActive(_ context.Context) ([]*TrackItem, error) {
	var out []*TrackItem
	for _, i := range m.s.items {
		cat, ok := m.s.categories[i.CategoryID]
		if i.Status == StatusActive && ok && cat.Status == StatusActive {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type mockEntryRepo struct{ s *mockStore }

func (m *mockEntryRepo) GetByID(_ context.Context, id uuid.UUID) (*TrackItemEntry, error) {
	if e, ok := m.s.entries[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}
func (m *mockEntryRepo) Get(_ context.Context, itemID, patientID uuid.UUID, entryDate string) (*TrackItemEntry, error) {
	for _, e := range m.s.entries {
		if e.TrackItemID == itemID && e.PatientID == patientID && e.EntryDate == entryDate {
			return e, nil
		}
	}
	return nil, ErrNotFound
}
func (m *mockEntryRepo) UpsertSelected(_ context.Context, e *TrackItemEntry) error {
	for _, existing := range m.s.entries {
		if existing.TrackItemID == e.TrackItemID && existing.PatientID == e.PatientID && existing.EntryDate == e.EntryDate {
			existing.Selected = true
			existing.UpdatedAt = time.Now()
			e.ID = existing.ID
			e.Selected = true
			e.CreatedAt = existing.CreatedAt
			e.UpdatedAt = existing.UpdatedAt
			return nil
		}
	}
	e.ID = uuid.New()
	e.Selected = true
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	clone := *e
	m.s.entries[e.ID] = &clone
	return nil
}
func (m *mockEntryRepo) DeselectAll(_ context.Context, itemID, patientID uuid.UUID) error {
	for _, e := range m.s.entries {
		if e.TrackItemID == itemID && e.PatientID == patientID {
			e.Selected = false
			e.UpdatedAt = time.Now()
		}
	}
	return nil
}
func (m *mockEntryRepo) ListSubscribed(_ context.Context, patientID uuid.UUID) ([]*SubscribedItem, error) {
	seen := map[uuid.UUID]bool{}
	var out []*SubscribedItem
	for _, e := range m.s.entries {
		if e.PatientID != patientID || !e.Selected || seen[e.TrackItemID] {
			continue
		}
		item, ok := m.s.items[e.TrackItemID]
		if !ok || item.Status != StatusActive {
			continue
		}
		cat, ok := m.s.categories[item.CategoryID]
		if !ok || cat.Status != StatusActive {
			continue
		}
		seen[e.TrackItemID] = true
		out = append(out, &SubscribedItem{ItemID: item.ID, Frequency: item.Frequency})
	}
	return out, nil
}
func (m *mockEntryRepo) ListDatedView(ctx context.Context, patientID uuid.UUID, daily, weekly, monthly string) ([]*DatedItemRow, error) {
	var items []*TrackItem
	for _, i := range m.s.items {
		cat, ok := m.s.categories[i.CategoryID]
		if i.Status == StatusActive && ok && cat.Status == StatusActive {
			items = append(items, i)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	var out []*DatedItemRow
	for _, item := range items {
		bucket := daily
		switch item.Frequency {
		case dates.Weekly:
			bucket = weekly
		case dates.Monthly:
			bucket = monthly
		}
		entry, _ := m.Get(ctx, item.ID, patientID, bucket)

		responses := 0
		answered := map[uuid.UUID]bool{}
		if entry != nil {
			for _, r := range m.s.responses {
				if r.TrackItemEntryID == entry.ID {
					responses++
					if q, ok := m.s.questions[r.QuestionID]; ok && q.Status == StatusActive {
						answered[r.QuestionID] = true
					}
				}
			}
		}
		selected := entry != nil && entry.Selected
		if !selected && responses == 0 {
			continue
		}

		row := &DatedItemRow{
			Item:      *item,
			Selected:  selected,
			Completed: len(answered),
			Total:     len(m.s.activeQuestionsByItem(item.ID)),
		}
		if entry != nil {
			id := entry.ID
			row.EntryID = &id
		}
		out = append(out, row)
	}
	return out, nil
}

type mockQuestionRepo struct{ s *mockStore }

func (m *mockQuestionRepo) Create(_ context.Context, q *Question) error {
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	m.s.questions[q.ID] = q
	return nil
}
func (m *mockQuestionRepo) GetByID(_ context.Context, id uuid.UUID) (*Question, error) {
	if q, ok := m.s.questions[id]; ok {
		return q, nil
	}
	return nil, ErrNotFound
}
func (m *mockQuestionRepo) Update(_ context.Context, q *Question) error {
	if _, ok := m.s.questions[q.ID]; !ok {
		return ErrNotFound
	}
	m.s.questions[q.ID] = q
	return nil
}
func (m *mockQuestionRepo) ListActiveByItem(_ context.Context, itemID uuid.UUID) ([]*Question, error) {
	return m.s.activeQuestionsByItem(itemID), nil
}

type mockOptionRepo struct{ s *mockStore }

func (m *mockOptionRepo) Create(_ context.Context, o *ResponseOption) error {
	o.ID = uuid.New()
	m.s.options[o.ID] = o
	return nil
}
func (m *mockOptionRepo) ListActiveByQuestion(_ context.Context, questionID uuid.UUID) ([]*ResponseOption, error) {
	var out []*ResponseOption
	for _, o := range m.s.options {
		if o.QuestionID == questionID && o.Status == StatusActive {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}
func (m *mockOptionRepo) DeactivateByQuestion(_ context.Context, questionID uuid.UUID) error {
	for _, o := range m.s.options {
		if o.QuestionID == questionID {
			o.Status = StatusInactive
		}
	}
	return nil
}

type mockResponseRepo struct{ s *mockStore }

func (m *mockResponseRepo) Upsert(_ context.Context, r *TrackResponse) error {
	for _, existing := range m.s.responses {
		if existing.TrackItemEntryID == r.TrackItemEntryID && existing.QuestionID == r.QuestionID &&
			existing.UserID == r.UserID && existing.PatientID == r.PatientID {
			existing.Answer = r.Answer
			existing.UpdatedAt = time.Now()
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
			r.UpdatedAt = existing.UpdatedAt
			return nil
		}
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	clone := *r
	m.s.responses[r.ID] = &clone
	return nil
}
func (m *mockResponseRepo) ListByEntry(_ context.Context, entryID uuid.UUID) ([]*TrackResponse, error) {
	var out []*TrackResponse
	for _, r := range m.s.responses {
		if r.TrackItemEntryID == entryID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func newTestService(s *mockStore) *Service {
	return NewService(
		&mockCategoryRepo{s},
		&mockItemRepo{s},
		&mockEntryRepo{s},
		&mockQuestionRepo{s},
		&mockOptionRepo{s},
		&mockResponseRepo{s},
		nil,
		zerolog.Nop(),
	)
}

func (s *mockStore) entriesFor(itemID, patientID uuid.UUID) []*TrackItemEntry {
	var out []*TrackItemEntry
	for _, e := range s.entries {
		if e.TrackItemID == itemID && e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := dates.Parse(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

// ── Subscription Inference ──

func TestMaterializeDueEntries_Idempotent(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Drink water", dates.Daily)
	patientID := uuid.New()
	store.addEntry(item.ID, patientID, "01-05-2026", true)

	target := mustDate(t, "01-07-2026")
	for i := 0; i < 2; i++ {
		if err := svc.MaterializeDueEntries(context.Background(), patientID, uuid.Nil, target); err != nil {
			t.Fatalf("materialize: %v", err)
		}
	}

	entries := store.entriesFor(item.ID, patientID)
	if len(entries) != 2 {
		t.Fatalf("expected the historical entry plus one new bucket, got %d entries", len(entries))
	}
	for _, e := range entries {
		if !e.Selected {
			t.Errorf("entry %s should remain selected", e.EntryDate)
		}
	}
}

func TestMaterializeDueEntries_BoundaryGating(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	weekly := store.addItem(cat.ID, "Weigh in", dates.Weekly)
	monthly := store.addItem(cat.ID, "Refill meds", dates.Monthly)
	patientID := uuid.New()
	store.addEntry(weekly.ID, patientID, "01-05-2026", true)
	store.addEntry(monthly.ID, patientID, "01-01-2026", true)

	// Wednesday: neither frequency has a boundary, nothing materializes.
	if err := svc.MaterializeDueEntries(context.Background(), patientID, uuid.Nil, mustDate(t, "01-07-2026")); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if n := len(store.entriesFor(weekly.ID, patientID)); n != 1 {
		t.Errorf("weekly item should not materialize mid-week, got %d entries", n)
	}

	// Monday: the weekly bucket materializes, the monthly does not.
	if err := svc.MaterializeDueEntries(context.Background(), patientID, uuid.Nil, mustDate(t, "01-12-2026")); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if _, err := (&mockEntryRepo{store}).Get(context.Background(), weekly.ID, patientID, "01-12-2026"); err != nil {
		t.Error("expected a weekly entry for Monday 01-12-2026")
	}
	if n := len(store.entriesFor(monthly.ID, patientID)); n != 1 {
		t.Errorf("monthly item should only materialize on the 1st, got %d entries", n)
	}

	// First of the next month: the monthly bucket materializes.
	if err := svc.MaterializeDueEntries(context.Background(), patientID, uuid.Nil, mustDate(t, "02-01-2026")); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if _, err := (&mockEntryRepo{store}).Get(context.Background(), monthly.ID, patientID, "02-01-2026"); err != nil {
		t.Error("expected a monthly entry for 02-01-2026")
	}
}

func TestMaterializeDueEntries_ReactivatesDeselected(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Stretch", dates.Daily)
	patientID := uuid.New()
	store.addEntry(item.ID, patientID, "01-05-2026", true)
	deselected := store.addEntry(item.ID, patientID, "01-07-2026", false)

	if err := svc.MaterializeDueEntries(context.Background(), patientID, uuid.Nil, mustDate(t, "01-07-2026")); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if !store.entries[deselected.ID].Selected {
		t.Error("existing deselected entry should be reactivated, not duplicated")
	}
	if n := len(store.entriesFor(item.ID, patientID)); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestMaterializeDueEntries_NoSubscriptions(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	if err := svc.MaterializeDueEntries(context.Background(), uuid.New(), uuid.Nil, mustDate(t, "01-07-2026")); err != nil {
		t.Fatalf("empty subscription set should be a no-op, got %v", err)
	}
	if len(store.entries) != 0 {
		t.Error("no entries should be created")
	}
}

// ── Dated View ──

func TestDatedView_InclusionRule(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	patientID := uuid.New()
	userID := uuid.New()
	date := "01-07-2026"

	selected := store.addItem(cat.ID, "Selected", dates.Daily)
	store.addEntry(selected.ID, patientID, date, true)

	answered := store.addItem(cat.ID, "Answered but unselected", dates.Daily)
	aq := store.addQuestion(answered.ID, "Did you?", nil, 0)
	ae := store.addEntry(answered.ID, patientID, date, false)
	if _, err := svc.SaveResponse(context.Background(), ae.ID, aq.ID, `"yes"`, userID, patientID); err != nil {
		t.Fatalf("save response: %v", err)
	}
	// Deselect again: SaveResponse does not touch selection, but keep
	// the scenario explicit.
	ae.Selected = false

	bare := store.addItem(cat.ID, "Unselected, no answers", dates.Daily)
	store.addEntry(bare.ID, patientID, date, false)

	store.addItem(cat.ID, "Never linked", dates.Daily)

	view, err := svc.DatedView(context.Background(), patientID, userID, mustDate(t, date))
	if err != nil {
		t.Fatalf("dated view: %v", err)
	}
	if len(view) != 1 {
		t.Fatalf("expected 1 category, got %d", len(view))
	}
	names := map[string]bool{}
	for _, iv := range view[0].Items {
		names[iv.Item.Name] = true
	}
	if !names["Selected"] {
		t.Error("selected item should be included")
	}
	if !names["Answered but unselected"] {
		t.Error("previously answered item should remain visible")
	}
	if names["Unselected, no answers"] {
		t.Error("deselected item without answers should be excluded")
	}
	if names["Never linked"] {
		t.Error("item without an entry should be excluded")
	}
}

func TestDatedView_CompletionCounts(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	patientID := uuid.New()
	userID := uuid.New()
	date := "01-07-2026"

	item := store.addItem(cat.ID, "Sleep", dates.Daily)
	q1 := store.addQuestion(item.ID, "Hours?", nil, 0)
	store.addQuestion(item.ID, "Rested?", nil, 1)
	entry := store.addEntry(item.ID, patientID, date, true)
	if _, err := svc.SaveResponse(context.Background(), entry.ID, q1.ID, `7`, userID, patientID); err != nil {
		t.Fatalf("save response: %v", err)
	}

	view, err := svc.DatedView(context.Background(), patientID, userID, mustDate(t, date))
	if err != nil {
		t.Fatalf("dated view: %v", err)
	}
	iv := view[0].Items[0]
	if iv.Completed != 1 || iv.Total != 2 {
		t.Errorf("expected completed=1 total=2, got %d/%d", iv.Completed, iv.Total)
	}
}

func TestDatedView_MaterializesSubscribedBuckets(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Walk", dates.Daily)
	patientID := uuid.New()
	store.addEntry(item.ID, patientID, "01-05-2026", true)

	view, err := svc.DatedView(context.Background(), patientID, uuid.Nil, mustDate(t, "01-07-2026"))
	if err != nil {
		t.Fatalf("dated view: %v", err)
	}
	if len(view) != 1 || len(view[0].Items) != 1 {
		t.Fatalf("expected the subscribed item in the view, got %+v", view)
	}
	if view[0].Items[0].EntryID == nil {
		t.Error("viewing a due date should materialize the bucket entry")
	}
}

// ── Questions, Responses, Options ──

func TestQuestionsWithOptions(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Mood", dates.Daily)
	patientID := uuid.New()
	userID := uuid.New()

	parent := store.addQuestion(item.ID, "Feeling low?", nil, 0)
	yes := &ResponseOption{ID: uuid.New(), QuestionID: parent.ID, Code: "o_yes", Text: "Yes", Status: StatusActive}
	store.options[yes.ID] = yes
	child := store.addQuestion(item.ID, "How often?", nil, 1)
	child.ParentQuestionID = &parent.ID
	child.DisplayCondition = strptr(`{"eq":"o_yes"}`)

	entry := store.addEntry(item.ID, patientID, "01-07-2026", true)
	if _, err := svc.SaveResponse(context.Background(), entry.ID, parent.ID, `"o_yes"`, userID, patientID); err != nil {
		t.Fatalf("save response: %v", err)
	}

	qs, err := svc.QuestionsWithOptions(context.Background(), item.ID, entry.ID)
	if err != nil {
		t.Fatalf("questions with options: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].Answer == nil || *qs[0].Answer != `"o_yes"` {
		t.Error("parent answer should be attached")
	}
	if !qs[1].Visible {
		t.Error("child should be visible once its condition matches")
	}

	// Preview without an entry: no answers, the child is hidden.
	qs, err = svc.QuestionsWithOptions(context.Background(), item.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("questions with options: %v", err)
	}
	if qs[1].Visible {
		t.Error("child should be hidden with no parent answer")
	}
}

func TestSaveResponse_UpdatesInPlace(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Pain", dates.Daily)
	q := store.addQuestion(item.ID, "Level?", nil, 0)
	patientID := uuid.New()
	userID := uuid.New()
	entry := store.addEntry(item.ID, patientID, "01-07-2026", true)

	first, err := svc.SaveResponse(context.Background(), entry.ID, q.ID, `3`, userID, patientID)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := svc.SaveResponse(context.Background(), entry.ID, q.ID, `5`, userID, patientID)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if first.ID != second.ID {
		t.Error("second save should update the same row")
	}
	if len(store.responses) != 1 {
		t.Errorf("expected 1 response row, got %d", len(store.responses))
	}
	if store.responses[first.ID].Answer != `5` {
		t.Errorf("answer not updated, got %q", store.responses[first.ID].Answer)
	}
	// The column is NOT NULL; the writer always records the actor.
	if store.responses[first.ID].UserID != userID {
		t.Errorf("user id not recorded, got %s", store.responses[first.ID].UserID)
	}
}

func TestAddOption(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Diet", dates.Daily)
	q := store.addQuestion(item.ID, "What did you eat?", nil, 0)

	opt, err := svc.AddOption(context.Background(), q.ID, "  Salad  ")
	if err != nil {
		t.Fatalf("add option: %v", err)
	}
	if opt.Text != "Salad" {
		t.Errorf("text should be trimmed, got %q", opt.Text)
	}
	if opt.Code == "" {
		t.Error("option should get a fresh code")
	}
	if _, err := svc.AddOption(context.Background(), q.ID, "   "); err == nil {
		t.Error("blank text should be rejected")
	}
	if _, err := svc.AddOption(context.Background(), uuid.New(), "x"); err == nil {
		t.Error("unknown question should be rejected")
	}
}

// ── Selectable Categories ──

func TestSelectableCategories_Paginates(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	a := store.addCategory("Activity", StatusActive)
	b := store.addCategory("Nutrition", StatusActive)
	c := store.addCategory("Sleep", StatusActive)
	store.addCategory("Retired", StatusInactive)
	store.addItem(b.ID, "Log meals", dates.Daily)

	page, total, err := svc.SelectableCategories(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("selectable categories: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(page) != 2 || page[0].Category.ID != a.ID || page[1].Category.ID != b.ID {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if len(page[0].Items) != 0 || len(page[1].Items) != 1 {
		t.Error("items should be grouped under their category")
	}

	page, total, err = svc.SelectableCategories(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("selectable categories: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].Category.ID != c.ID {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

// ── Link / Unlink ──

func TestLinkItem_BucketsByFrequency(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	weekly := store.addItem(cat.ID, "Weigh in", dates.Weekly)
	patientID := uuid.New()

	// Linking mid-week lands on that week's Monday bucket.
	entry, err := svc.LinkItem(context.Background(), weekly.ID, patientID, uuid.Nil, mustDate(t, "01-07-2026"))
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if entry.EntryDate != "01-05-2026" {
		t.Errorf("expected Monday bucket 01-05-2026, got %s", entry.EntryDate)
	}
	if !entry.Selected {
		t.Error("linked entry should be selected")
	}
}

func TestUnlinkItem_DeselectsAllDates(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Walk", dates.Daily)
	patientID := uuid.New()
	store.addEntry(item.ID, patientID, "01-05-2026", true)
	store.addEntry(item.ID, patientID, "01-06-2026", true)
	other := store.addEntry(item.ID, uuid.New(), "01-06-2026", true)

	if err := svc.UnlinkItem(context.Background(), item.ID, patientID); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	for _, e := range store.entriesFor(item.ID, patientID) {
		if e.Selected {
			t.Errorf("entry %s should be deselected", e.EntryDate)
		}
	}
	if !store.entries[other.ID].Selected {
		t.Error("another patient's entry must not be touched")
	}
}

// ── Summaries ──

func TestSummaries_RegularItem(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory("Wellness", StatusActive)
	item := store.addItem(cat.ID, "Sleep", dates.Daily)
	patientID := uuid.New()
	userID := uuid.New()

	q1 := store.addQuestion(item.ID, "Hours?", strptr("Slept {{answer}} hours"), 0)
	q2 := store.addQuestion(item.ID, "Dream?", strptr("Dreamt: {{answer}}"), 1)
	q2.ParentQuestionID = &q1.ID
	q2.DisplayCondition = strptr(`{"gt":10}`)
	store.addQuestion(item.ID, "No template", nil, 2)

	entry := store.addEntry(item.ID, patientID, "01-07-2026", true)
	if _, err := svc.SaveResponse(context.Background(), entry.ID, q1.ID, `7`, userID, patientID); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveResponse(context.Background(), entry.ID, q2.ID, `"yes"`, userID, patientID); err != nil {
		t.Fatalf("save: %v", err)
	}

	sums, err := svc.Summaries(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	// q2 is answered but hidden (7 is not > 10), so only q1 renders.
	if len(sums) != 1 || sums[0] != "Slept 7 hours" {
		t.Errorf("expected [\"Slept 7 hours\"], got %v", sums)
	}
}

func TestSummaries_CustomCategory(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	cat := store.addCategory(CustomCategoryName, StatusActive)
	item := store.addItem(cat.ID, "My goal", dates.Daily)
	q := store.addQuestion(item.ID, "Done?", strptr("Did it: {{answer}}"), 0)
	patientID := uuid.New()
	userID := uuid.New()
	entry := store.addEntry(item.ID, patientID, "01-07-2026", true)

	sums, err := svc.Summaries(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(sums) != 0 {
		t.Errorf("expected no summaries before any response, got %v", sums)
	}

	if _, err := svc.SaveResponse(context.Background(), entry.ID, q.ID, `"Yes"`, userID, patientID); err != nil {
		t.Fatalf("save: %v", err)
	}
	sums, err = svc.Summaries(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	want := "Last updated: " + dates.Format(time.Now())
	if len(sums) != 1 || sums[0] != want {
		t.Errorf("expected [%q], got %v", want, sums)
	}
}

func TestSummaries_UnknownEntry(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	if _, err := svc.Summaries(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for an unknown entry, got %v", err)
	}
}

// ── Custom Goals ──

func TestCustomGoal_EndToEnd(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	store.addCategory(CustomCategoryName, StatusActive)
	patientID := uuid.New()
	userID := uuid.New()

	item, err := svc.AddCustomGoal(context.Background(), patientID, userID, &CustomGoalInput{
		Name:      "Meditate",
		Questions: []CustomQuestionInput{{Text: "Did you meditate?", Type: TypeBoolean}},
	})
	if err != nil {
		t.Fatalf("add custom goal: %v", err)
	}

	qs := store.activeQuestionsByItem(item.ID)
	if len(qs) != 1 {
		t.Fatalf("expected 1 question, got %d", len(qs))
	}
	opts, _ := (&mockOptionRepo{store}).ListActiveByQuestion(context.Background(), qs[0].ID)
	if len(opts) != 2 || opts[0].Text != "Yes" || opts[1].Text != "No" {
		t.Fatalf("boolean question should get Yes/No options, got %+v", opts)
	}

	entries := store.entriesFor(item.ID, patientID)
	if len(entries) != 1 || !entries[0].Selected {
		t.Fatalf("creating a custom goal should link its creation bucket, got %+v", entries)
	}
	entry := entries[0]

	if _, err := svc.SaveResponse(context.Background(), entry.ID, qs[0].ID, `"Yes"`, userID, patientID); err != nil {
		t.Fatalf("save response: %v", err)
	}
	viewDate := mustDate(t, entry.EntryDate)
	view, err := svc.DatedView(context.Background(), patientID, userID, viewDate)
	if err != nil {
		t.Fatalf("dated view: %v", err)
	}
	var found *ItemView
	for _, cv := range view {
		for _, iv := range cv.Items {
			if iv.Item.ID == item.ID {
				found = iv
			}
		}
	}
	if found == nil {
		t.Fatal("custom goal missing from the dated view")
	}
	if found.Completed != 1 || found.Total != 1 {
		t.Errorf("expected completed=1 total=1, got %d/%d", found.Completed, found.Total)
	}

	if err := svc.RemoveCustomGoal(context.Background(), item.ID, patientID); err != nil {
		t.Fatalf("remove custom goal: %v", err)
	}
	cats, _, err := svc.SelectableCategories(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("selectable categories: %v", err)
	}
	for _, sc := range cats {
		for _, i := range sc.Items {
			if i.ID == item.ID {
				t.Error("removed goal should not be selectable")
			}
		}
	}
	// Historical rows survive the removal.
	if _, ok := store.entries[entry.ID]; !ok {
		t.Error("entry rows must not be deleted")
	}
	if len(store.responses) != 1 {
		t.Error("response rows must not be deleted")
	}
	if store.entries[entry.ID].Selected {
		t.Error("entries should be deselected on removal")
	}
}

func TestAddCustomGoal_MissingCustomCategory(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	if _, err := svc.AddCustomGoal(context.Background(), uuid.New(), uuid.Nil, &CustomGoalInput{Name: "X"}); err == nil {
		t.Fatal("expected an error when the Custom category is absent")
	}
}

func TestEditCustomGoal_PartialUpdates(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	store.addCategory(CustomCategoryName, StatusActive)
	patientID := uuid.New()

	item, err := svc.AddCustomGoal(context.Background(), patientID, uuid.Nil, &CustomGoalInput{
		Name: "Read",
		Questions: []CustomQuestionInput{
			{Text: "Which book?", Type: TypeMCQ, Options: []string{"Fiction", "Nonfiction", "  "}},
		},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	q := store.activeQuestionsByItem(item.ID)[0]
	opts, _ := (&mockOptionRepo{store}).ListActiveByQuestion(context.Background(), q.ID)
	if len(opts) != 2 {
		t.Fatalf("blank option strings should be skipped, got %d options", len(opts))
	}

	// Name-only update leaves questions untouched.
	if err := svc.EditCustomGoal(context.Background(), item.ID, &CustomGoalInput{Name: "Read more"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if store.items[item.ID].Name != "Read more" {
		t.Error("name should be updated")
	}
	if got := store.activeQuestionsByItem(item.ID)[0].Text; got != "Which book?" {
		t.Errorf("question should be untouched, got %q", got)
	}

	// Question update with options replaces the option set wholesale.
	if err := svc.EditCustomGoal(context.Background(), item.ID, &CustomGoalInput{
		Questions: []CustomQuestionInput{
			{ID: &q.ID, Text: "Which genre?", Options: []string{"Mystery"}},
			{Text: "Pages read?", Type: TypeNumeric},
		},
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if store.questions[q.ID].Text != "Which genre?" {
		t.Error("existing question text should be updated")
	}
	opts, _ = (&mockOptionRepo{store}).ListActiveByQuestion(context.Background(), q.ID)
	if len(opts) != 1 || opts[0].Text != "Mystery" {
		t.Errorf("option set should be replaced wholesale, got %+v", opts)
	}
	if n := len(store.activeQuestionsByItem(item.ID)); n != 2 {
		t.Errorf("new question should be inserted, got %d questions", n)
	}
}

func TestCustomGoal_WritesRunAtomically(t *testing.T) {
	store := newMockStore()
	var txCalls int
	svc := NewService(
		&mockCategoryRepo{store},
		&mockItemRepo{store},
		&mockEntryRepo{store},
		&mockQuestionRepo{store},
		&mockOptionRepo{store},
		&mockResponseRepo{store},
		func(ctx context.Context, fn func(ctx context.Context) error) error {
			txCalls++
			return fn(ctx)
		},
		zerolog.Nop(),
	)
	store.addCategory(CustomCategoryName, StatusActive)
	patientID := uuid.New()

	item, err := svc.AddCustomGoal(context.Background(), patientID, uuid.Nil, &CustomGoalInput{
		Name:      "Hydrate",
		Questions: []CustomQuestionInput{{Text: "Glasses?", Type: TypeNumeric}},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if txCalls != 1 {
		t.Errorf("create should run in one transaction, got %d", txCalls)
	}

	if err := svc.EditCustomGoal(context.Background(), item.ID, &CustomGoalInput{Name: "Hydrate more"}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if txCalls != 2 {
		t.Errorf("edit should run in one transaction, got %d total", txCalls)
	}

	if err := svc.RemoveCustomGoal(context.Background(), item.ID, patientID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if txCalls != 3 {
		t.Errorf("remove should run in one transaction, got %d total", txCalls)
	}

	// A failing write inside the transaction surfaces to the caller.
	if _, err := svc.AddCustomGoal(context.Background(), patientID, uuid.Nil, &CustomGoalInput{
		Name:      "Broken",
		Questions: []CustomQuestionInput{{Text: "   "}},
	}); err == nil {
		t.Error("blank question text should fail the whole create")
	}
}
