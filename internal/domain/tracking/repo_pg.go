package tracking

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welltrack/welltrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Category Repository ===========

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepoPG{pool: pool}
}

const categoryCols = `id, name, status, created_at`

func scanCategory(row pgx.Row) (*TrackCategory, error) {
	var c TrackCategory
	err := row.Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt)
	return &c, err
}

func (r *categoryRepoPG) Create(ctx context.Context, c *TrackCategory) error {
	c.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO track_category (id, name, status)
		VALUES ($1,$2,$3)`,
		c.ID, c.Name, c.Status)
	return err
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TrackCategory, error) {
	c, err := scanCategory(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+categoryCols+` FROM track_category WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (r *categoryRepoPG) GetByName(ctx context.Context, name string) (*TrackCategory, error) {
	c, err := scanCategory(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+categoryCols+` FROM track_category WHERE name = $1`, name))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

func (r *categoryRepoPG) Update(ctx context.Context, c *TrackCategory) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE track_category SET name=$2, status=$3 WHERE id = $1`,
		c.ID, c.Name, c.Status)
	return err
}

func (r *categoryRepoPG) ListActive(ctx context.Context) ([]*TrackCategory, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+categoryCols+` FROM track_category WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TrackCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *categoryRepoPG) ListActivePage(ctx context.Context, limit, offset int) ([]*TrackCategory, int, error) {
	q := conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM track_category WHERE status = 'active'`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+categoryCols+` FROM track_category
		WHERE status = 'active'
		ORDER BY created_at
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*TrackCategory
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

// =========== Item Repository ===========

type itemRepoPG struct{ pool *pgxpool.Pool }

func NewItemRepoPG(pool *pgxpool.Pool) ItemRepository {
	return &itemRepoPG{pool: pool}
}

const itemCols = `id, category_id, code, name, frequency, status, created_at`

func scanItem(row pgx.Row) (*TrackItem, error) {
	var i TrackItem
	err := row.Scan(&i.ID, &i.CategoryID, &i.Code, &i.Name, &i.Frequency, &i.Status, &i.CreatedAt)
	return &i, err
}

func (r *itemRepoPG) Create(ctx context.Context, i *TrackItem) error {
	i.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO track_item (id, category_id, code, name, frequency, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		i.ID, i.CategoryID, i.Code, i.Name, i.Frequency, i.Status)
	return err
}

func (r *itemRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TrackItem, error) {
	i, err := scanItem(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+itemCols+` FROM track_item WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return i, nil
}

func (r *itemRepoPG) Update(ctx context.Context, i *TrackItem) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE track_item SET name=$2, frequency=$3, status=$4 WHERE id = $1`,
		i.ID, i.Name, i.Frequency, i.Status)
	return err
}

func (r *itemRepoPG) ListActive(ctx context.Context) ([]*TrackItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+prefixedItemCols("i")+`
		FROM track_item i
		JOIN track_category c ON c.id = i.category_id AND c.status = 'active'
		WHERE i.status = 'active'
		ORDER BY i.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TrackItem
	for rows.Next() {
		i, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func prefixedItemCols(alias string) string {
	return alias + `.id, ` + alias + `.category_id, ` + alias + `.code, ` + alias + `.name, ` + alias + `.frequency, ` + alias + `.status, ` + alias + `.created_at`
}

// =========== Entry Repository ===========

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository {
	return &entryRepoPG{pool: pool}
}

const entryCols = `id, track_item_id, patient_id, user_id, entry_date, selected, created_at, updated_at`

func scanEntry(row pgx.Row) (*TrackItemEntry, error) {
	var e TrackItemEntry
	err := row.Scan(&e.ID, &e.TrackItemID, &e.PatientID, &e.UserID, &e.EntryDate, &e.Selected, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TrackItemEntry, error) {
	e, err := scanEntry(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+entryCols+` FROM track_item_entry WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return e, nil
}

func (r *entryRepoPG) Get(ctx context.Context, itemID, patientID uuid.UUID, entryDate string) (*TrackItemEntry, error) {
	e, err := scanEntry(conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+entryCols+` FROM track_item_entry
		WHERE track_item_id = $1 AND patient_id = $2 AND entry_date = $3`,
		itemID, patientID, entryDate))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return e, nil
}

func (r *entryRepoPG) UpsertSelected(ctx context.Context, e *TrackItemEntry) error {
	// Single-statement upsert: redundant and concurrent calls converge
	// on one selected row per (item, patient, bucket date).
	id := uuid.New()
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO track_item_entry (id, track_item_id, patient_id, user_id, entry_date, selected)
		VALUES ($1,$2,$3,$4,$5,TRUE)
		ON CONFLICT (track_item_id, patient_id, entry_date)
		DO UPDATE SET selected = TRUE, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		id, e.TrackItemID, e.PatientID, e.UserID, e.EntryDate)
	e.Selected = true
	return row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (r *entryRepoPG) DeselectAll(ctx context.Context, itemID, patientID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE track_item_entry SET selected = FALSE, updated_at = NOW()
		WHERE track_item_id = $1 AND patient_id = $2`,
		itemID, patientID)
	return err
}

func (r *entryRepoPG) ListSubscribed(ctx context.Context, patientID uuid.UUID) ([]*SubscribedItem, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT i.id, i.frequency
		FROM track_item_entry e
		JOIN track_item i ON i.id = e.track_item_id AND i.status = 'active'
		JOIN track_category c ON c.id = i.category_id AND c.status = 'active'
		WHERE e.patient_id = $1 AND e.selected = TRUE`,
		patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []*SubscribedItem
	for rows.Next() {
		var s SubscribedItem
		if err := rows.Scan(&s.ItemID, &s.Frequency); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

func (r *entryRepoPG) ListDatedView(ctx context.Context, patientID uuid.UUID, daily, weekly, monthly string) ([]*DatedItemRow, error) {
	// An item is included when its bucket entry is currently selected,
	// or the entry exists and carries at least one recorded response
	// (previously answered items stay visible historically).
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+prefixedItemCols("i")+`,
			e.id, COALESCE(e.selected, FALSE),
			COUNT(DISTINCT r.question_id),
			COUNT(DISTINCT q.id)
		FROM track_item i
		JOIN track_category c ON c.id = i.category_id AND c.status = 'active'
		LEFT JOIN track_item_entry e ON e.track_item_id = i.id
			AND e.patient_id = $1
			AND e.entry_date = CASE i.frequency
				WHEN 'weekly' THEN $3
				WHEN 'monthly' THEN $4
				ELSE $2 END
		LEFT JOIN question q ON q.track_item_id = i.id AND q.status = 'active'
		LEFT JOIN track_response r ON r.track_item_entry_id = e.id AND r.question_id = q.id
		WHERE i.status = 'active'
			AND (e.selected = TRUE
				OR EXISTS (SELECT 1 FROM track_response tr WHERE tr.track_item_entry_id = e.id))
		GROUP BY i.id, i.category_id, i.code, i.name, i.frequency, i.status, i.created_at, e.id, e.selected
		ORDER BY i.created_at`,
		patientID, daily, weekly, monthly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*DatedItemRow
	for rows.Next() {
		var row DatedItemRow
		if err := rows.Scan(
			&row.Item.ID, &row.Item.CategoryID, &row.Item.Code, &row.Item.Name,
			&row.Item.Frequency, &row.Item.Status, &row.Item.CreatedAt,
			&row.EntryID, &row.Selected, &row.Completed, &row.Total,
		); err != nil {
			return nil, err
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}

// =========== Question Repository ===========

type questionRepoPG struct{ pool *pgxpool.Pool }

func NewQuestionRepoPG(pool *pgxpool.Pool) QuestionRepository {
	return &questionRepoPG{pool: pool}
}

const questionCols = `id, track_item_id, code, text, qtype, required, summary_template,
	status, parent_question_id, display_condition, sort_order, created_at`

func scanQuestion(row pgx.Row) (*Question, error) {
	var q Question
	err := row.Scan(&q.ID, &q.TrackItemID, &q.Code, &q.Text, &q.Type, &q.Required, &q.SummaryTemplate,
		&q.Status, &q.ParentQuestionID, &q.DisplayCondition, &q.SortOrder, &q.CreatedAt)
	return &q, err
}

func (r *questionRepoPG) Create(ctx context.Context, q *Question) error {
	q.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO question (id, track_item_id, code, text, qtype, required, summary_template,
			status, parent_question_id, display_condition, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		q.ID, q.TrackItemID, q.Code, q.Text, q.Type, q.Required, q.SummaryTemplate,
		q.Status, q.ParentQuestionID, q.DisplayCondition, q.SortOrder)
	return err
}

func (r *questionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Question, error) {
	q, err := scanQuestion(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+questionCols+` FROM question WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return q, nil
}

func (r *questionRepoPG) Update(ctx context.Context, q *Question) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE question SET text=$2, qtype=$3, required=$4, summary_template=$5,
			status=$6, parent_question_id=$7, display_condition=$8, sort_order=$9
		WHERE id = $1`,
		q.ID, q.Text, q.Type, q.Required, q.SummaryTemplate,
		q.Status, q.ParentQuestionID, q.DisplayCondition, q.SortOrder)
	return err
}

func (r *questionRepoPG) ListActiveByItem(ctx context.Context, itemID uuid.UUID) ([]*Question, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+questionCols+` FROM question
		WHERE track_item_id = $1 AND status = 'active'
		ORDER BY sort_order, created_at`,
		itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

// =========== Option Repository ===========

type optionRepoPG struct{ pool *pgxpool.Pool }

func NewOptionRepoPG(pool *pgxpool.Pool) OptionRepository {
	return &optionRepoPG{pool: pool}
}

const optionCols = `id, question_id, code, text, status, sort_order`

func scanOption(row pgx.Row) (*ResponseOption, error) {
	var o ResponseOption
	err := row.Scan(&o.ID, &o.QuestionID, &o.Code, &o.Text, &o.Status, &o.SortOrder)
	return &o, err
}

func (r *optionRepoPG) Create(ctx context.Context, o *ResponseOption) error {
	o.ID = uuid.New()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO response_option (id, question_id, code, text, status, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.QuestionID, o.Code, o.Text, o.Status, o.SortOrder)
	return err
}

func (r *optionRepoPG) ListActiveByQuestion(ctx context.Context, questionID uuid.UUID) ([]*ResponseOption, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+optionCols+` FROM response_option
		WHERE question_id = $1 AND status = 'active'
		ORDER BY sort_order`,
		questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResponseOption
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *optionRepoPG) DeactivateByQuestion(ctx context.Context, questionID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE response_option SET status = 'inactive' WHERE question_id = $1`,
		questionID)
	return err
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

const responseCols = `id, track_item_entry_id, question_id, user_id, patient_id, answer, created_at, updated_at`

func scanResponse(row pgx.Row) (*TrackResponse, error) {
	var t TrackResponse
	err := row.Scan(&t.ID, &t.TrackItemEntryID, &t.QuestionID, &t.UserID, &t.PatientID, &t.Answer, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *responseRepoPG) Upsert(ctx context.Context, t *TrackResponse) error {
	id := uuid.New()
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO track_response (id, track_item_entry_id, question_id, user_id, patient_id, answer)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (track_item_entry_id, question_id, user_id, patient_id)
		DO UPDATE SET answer = EXCLUDED.answer, updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		id, t.TrackItemEntryID, t.QuestionID, t.UserID, t.PatientID, t.Answer)
	return row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

func (r *responseRepoPG) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]*TrackResponse, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+responseCols+` FROM track_response
		WHERE track_item_entry_id = $1
		ORDER BY created_at`,
		entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TrackResponse
	for rows.Next() {
		t, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}
