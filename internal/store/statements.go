package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
	"github.com/iammorganparry/clive/apps/learnbot/internal/retry"
	"github.com/iammorganparry/clive/apps/learnbot/internal/vector"
)

const statementColumns = `id, text, search_text, in_response_to, search_in_response_to,
	conversation, persona, tags, vector, vector_norm, count, created_at, last_updated_at`

// Options tune the optimistic merge path.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// StatementStore is the SQLite implementation of Store.
type StatementStore struct {
	db         *DB
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ Store = (*StatementStore)(nil)

func NewStatementStore(db *DB, opts Options) *StatementStore {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Millisecond
	}
	return &StatementStore{
		db:         db,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStatement(row rowScanner) (*models.Statement, error) {
	var s models.Statement
	var tags string
	var vec []byte
	var created, updated int64

	err := row.Scan(&s.ID, &s.Text, &s.SearchText, &s.InResponseTo, &s.SearchInResponseTo,
		&s.Conversation, &s.Persona, &tags, &vec, &s.VectorNorm, &s.Count, &created, &updated)
	if err != nil {
		return nil, err
	}

	s.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &s.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	s.Vector = vector.BytesToFloat32(vec)
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.LastUpdatedAt = time.UnixMilli(updated).UTC()
	return &s, nil
}

func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func statementArgs(s *models.Statement) []any {
	return []any{
		s.ID, s.Text, s.SearchText, s.InResponseTo, s.SearchInResponseTo,
		s.Conversation, s.Persona, tagsJSON(s.Tags), vector.Float32ToBytes(s.Vector), s.VectorNorm,
		s.Count, s.CreatedAt.UnixMilli(), s.LastUpdatedAt.UnixMilli(),
	}
}

// prepare stamps identity and timestamps on a record about to be inserted.
func prepare(s *models.Statement, now time.Time) *models.Statement {
	c := s.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.LastUpdatedAt = now
	c.Count = 1
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}

// buildSelect translates q into SQL. Grouping and the page size cap are
// applied by the caller while streaming rows.
func buildSelect(q Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var where []string
	var args []any
	eq := func(col, v string) {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	contains := func(col, text string) {
		if p := WordsPattern(text); p != "" {
			where = append(where, col+" REGEXP ?")
			args = append(args, p)
		}
	}
	tagSet := func(tags []string, negate bool) {
		if len(tags) == 0 {
			return
		}
		clause := "EXISTS (SELECT 1 FROM json_each(tags) WHERE value IN (" + placeholders(len(tags)) + "))"
		if negate {
			clause = "NOT " + clause
		}
		where = append(where, clause)
		for _, t := range tags {
			args = append(args, t)
		}
	}

	eq("text", q.Text)
	eq("in_response_to", q.InResponseTo)
	eq("conversation", q.Conversation)
	eq("persona", q.Persona)
	if q.ExcludeBotPersona {
		where = append(where, "substr(persona, 1, ?) <> ?")
		args = append(args, len(models.BotPersonaPrefix), models.BotPersonaPrefix)
	}
	tagSet(q.Tags, false)
	tagSet(q.ExcludeTags, true)
	if len(q.ExcludeText) > 0 {
		where = append(where, "text NOT IN ("+placeholders(len(q.ExcludeText))+")")
		for _, t := range q.ExcludeText {
			args = append(args, t)
		}
	}
	if p := WordsPattern(strings.Join(q.ExcludeTextWords, " ")); p != "" {
		where = append(where, "NOT (text REGEXP ?)")
		args = append(args, p)
	}
	contains("text", q.TextContains)
	contains("search_text", q.SearchTextContains)
	contains("in_response_to", q.InResponseToContains)
	contains("search_in_response_to", q.SearchInResponseToContains)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(statementColumns)
	b.WriteString(" FROM ")
	b.WriteString(q.Collection.String())
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	order := make([]string, 0, len(q.Sort)+1)
	for _, s := range q.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = append(order, s.Field+" "+dir)
	}
	order = append(order, "rowid ASC")
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))

	if q.GroupBy == "" {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit())
	}
	return b.String(), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Filter streams matching statements straight from the cursor.
func (s *StatementStore) Filter(ctx context.Context, q Query) iter.Seq2[*models.Statement, error] {
	return func(yield func(*models.Statement, error) bool) {
		query, args, err := buildSelect(q)
		if err != nil {
			yield(nil, fmt.Errorf("filter statements: %w", err))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("filter statements: %w", err))
			return
		}
		defer rows.Close()

		seen := map[string]bool{}
		limit, n := q.Limit(), 0
		for rows.Next() {
			st, err := scanStatement(rows)
			if err != nil {
				yield(nil, fmt.Errorf("scan statement: %w", err))
				return
			}
			if q.GroupBy != "" {
				key := GroupKey(st, q.GroupBy)
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			if !yield(st, nil) {
				return
			}
			if n++; n >= limit {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate statements: %w", err))
		}
	}
}

// MergeUpsert inserts s or merges it into the record matched by p. The
// (text, in_response_to) key runs as a single upsert statement; any other
// key uses compare-and-swap on count with bounded retries.
func (s *StatementStore) MergeUpsert(ctx context.Context, st *models.Statement, p MergePolicy) (*models.Statement, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("merge statement: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch {
	case p.Target == CollectionLatest:
		return s.upsertLatest(ctx, st, p, now)
	case p.NaturalKey() && st.ID == "":
		return s.upsertNatural(ctx, st, p, now)
	default:
		return s.upsertOptimistic(ctx, st, p, now)
	}
}

const unionTags = `(SELECT json_group_array(value) FROM (
		SELECT value FROM json_each(statements.tags)
		UNION
		SELECT value FROM json_each(excluded.tags)))`

func (s *StatementStore) upsertNatural(ctx context.Context, st *models.Statement, p MergePolicy, now time.Time) (*models.Statement, error) {
	rec := prepare(st, now)

	set := []string{
		"count = statements.count + 1",
		"last_updated_at = excluded.last_updated_at",
		"search_text = excluded.search_text",
		"persona = excluded.persona",
	}
	if p.ReplaceTags {
		set = append(set, "tags = excluded.tags")
	} else {
		set = append(set, "tags = "+unionTags)
	}
	if !p.ProtectWriteOnce {
		set = append(set,
			"created_at = excluded.created_at",
			"conversation = excluded.conversation",
			"search_in_response_to = excluded.search_in_response_to",
			"vector = excluded.vector",
			"vector_norm = excluded.vector_norm",
		)
	}

	query := `INSERT INTO statements (` + statementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(text, in_response_to) DO UPDATE SET ` + strings.Join(set, ", ") + `
		RETURNING ` + statementColumns

	var out *models.Statement
	err := s.withBusyRetry(ctx, func() error {
		var err error
		out, err = scanStatement(s.db.QueryRowContext(ctx, query, statementArgs(rec)...))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert statement: %w", err)
	}
	return out, nil
}

// withBusyRetry retries fn while SQLite reports the database busy.
func (s *StatementStore) withBusyRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if serr := retry.Sleep(ctx, s.retryDelay, attempt); serr != nil {
				return serr
			}
		}
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		s.logger.Debug("database busy, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%w: %v", ErrTransientStorage, err)
}

func (s *StatementStore) upsertOptimistic(ctx context.Context, st *models.Statement, p MergePolicy, now time.Time) (*models.Statement, error) {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, s.retryDelay, attempt); err != nil {
				return nil, err
			}
			s.logger.Debug("merge conflict, retrying",
				zap.String("text", st.Text),
				zap.Int("attempt", attempt+1),
			)
		}

		existing, err := s.findByKey(ctx, st, p)
		if err != nil {
			if isBusy(err) {
				continue
			}
			return nil, err
		}

		if existing == nil {
			rec := prepare(st, now)
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO statements (`+statementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				statementArgs(rec)...); err != nil {
				if isUniqueViolation(err) || isBusy(err) {
					continue
				}
				return nil, fmt.Errorf("insert statement: %w", err)
			}
			return rec, nil
		}

		merged := Merge(existing, st, p, now)
		res, err := s.db.ExecContext(ctx, `
			UPDATE statements SET
				text = ?, search_text = ?, in_response_to = ?, search_in_response_to = ?,
				conversation = ?, persona = ?, tags = ?, vector = ?, vector_norm = ?,
				count = ?, created_at = ?, last_updated_at = ?
			WHERE id = ? AND count = ?`,
			merged.Text, merged.SearchText, merged.InResponseTo, merged.SearchInResponseTo,
			merged.Conversation, merged.Persona, tagsJSON(merged.Tags), vector.Float32ToBytes(merged.Vector), merged.VectorNorm,
			merged.Count, merged.CreatedAt.UnixMilli(), merged.LastUpdatedAt.UnixMilli(),
			existing.ID, existing.Count,
		)
		if err != nil {
			if isBusy(err) {
				continue
			}
			return nil, fmt.Errorf("update statement: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return merged, nil
		}
	}

	return nil, fmt.Errorf("%w: merge %q gave up after %d attempts", ErrTransientStorage, st.Text, s.maxRetries+1)
}

func (s *StatementStore) findByKey(ctx context.Context, st *models.Statement, p MergePolicy) (*models.Statement, error) {
	var where []string
	var args []any
	if st.ID != "" {
		where = append(where, "id = ?")
		args = append(args, st.ID)
	} else {
		if p.MatchText {
			where = append(where, "text = ?")
			args = append(args, st.Text)
		}
		if p.MatchInResponseTo {
			where = append(where, "in_response_to = ?")
			args = append(args, st.InResponseTo)
		}
		if p.MatchConversation {
			where = append(where, "conversation = ?")
			args = append(args, st.Conversation)
		}
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+statementColumns+" FROM statements WHERE "+strings.Join(where, " AND ")+" ORDER BY rowid LIMIT 1",
		args...)
	existing, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find statement: %w", err)
	}
	return existing, nil
}

// upsertLatest overwrites the conversation's latest bot turn.
func (s *StatementStore) upsertLatest(ctx context.Context, st *models.Statement, p MergePolicy, now time.Time) (*models.Statement, error) {
	rec := prepare(st, now)

	tags := "tags = excluded.tags"
	if !p.ReplaceTags {
		tags = "tags = " + strings.ReplaceAll(unionTags, "statements.tags", "latest_responses.tags")
	}

	query := `INSERT INTO latest_responses (` + statementColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation) DO UPDATE SET
			id = excluded.id,
			text = excluded.text,
			search_text = excluded.search_text,
			in_response_to = excluded.in_response_to,
			search_in_response_to = excluded.search_in_response_to,
			persona = excluded.persona,
			` + tags + `,
			vector = excluded.vector,
			vector_norm = excluded.vector_norm,
			count = latest_responses.count + 1,
			created_at = excluded.created_at,
			last_updated_at = excluded.last_updated_at
		RETURNING ` + statementColumns

	var out *models.Statement
	err := s.withBusyRetry(ctx, func() error {
		var err error
		out, err = scanStatement(s.db.QueryRowContext(ctx, query, statementArgs(rec)...))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upsert latest response: %w", err)
	}
	return out, nil
}

const insertIgnore = `INSERT INTO statements (` + statementColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(text, in_response_to) DO NOTHING`

// Create inserts st if its (text, in_response_to) pair is new.
func (s *StatementStore) Create(ctx context.Context, st *models.Statement) (*models.Statement, error) {
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	rec := prepare(st, time.Now().UTC())
	if _, err := s.db.ExecContext(ctx, insertIgnore, statementArgs(rec)...); err != nil {
		return nil, fmt.Errorf("create statement: %w", err)
	}
	return s.findByKey(ctx, &models.Statement{Text: rec.Text, InResponseTo: rec.InResponseTo}, LearnPolicy)
}

// CreateMany inserts statements in one transaction, skipping pairs that
// already exist.
func (s *StatementStore) CreateMany(ctx context.Context, stmts []*models.Statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ins, err := tx.PrepareContext(ctx, insertIgnore)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()

	now := time.Now().UTC()
	for _, st := range stmts {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("create statement: %w", err)
		}
		if _, err := ins.ExecContext(ctx, statementArgs(prepare(st, now))...); err != nil {
			return fmt.Errorf("insert statement: %w", err)
		}
	}
	return tx.Commit()
}

func (s *StatementStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statements").Scan(&n); err != nil {
		return 0, fmt.Errorf("count statements: %w", err)
	}
	return n, nil
}

// Random returns one statement chosen uniformly at random.
func (s *StatementStore) Random(ctx context.Context) (*models.Statement, error) {
	st, err := scanStatement(s.db.QueryRowContext(ctx,
		"SELECT "+statementColumns+" FROM statements ORDER BY RANDOM() LIMIT 1"))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmptyCorpus
	}
	if err != nil {
		return nil, fmt.Errorf("random statement: %w", err)
	}
	return st, nil
}

func (s *StatementStore) Remove(ctx context.Context, text string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM statements WHERE text = ?", text); err != nil {
		return fmt.Errorf("remove statement: %w", err)
	}
	return nil
}

func (s *StatementStore) Drop(ctx context.Context) error {
	for _, table := range []string{"statements", "latest_responses", "vector_cache"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	return nil
}

func (s *StatementStore) Close() error {
	return s.db.Close()
}
