package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/sms-inbox/internal/db"
	"github.com/jmehdipour/sms-inbox/internal/model"
	"github.com/jmoiron/sqlx"
)

// CreatedAtLayout is the ISO-8601 UTC layout stamped into created_at.
const CreatedAtLayout = "2006-01-02T15:04:05.000000Z"

// TopSenders bounds Stats.MessagesPerSender.
const TopSenders = 10

// MessagesRepository defines persistence for the messages table. Rows are
// insert-only: there is no update or delete path.
type MessagesRepository interface {
	// Insert stores m unless a row with the same message_id exists. created is
	// false for a duplicate; the existing row is left untouched.
	Insert(ctx context.Context, m model.Message) (created bool, err error)
	List(ctx context.Context, f model.Filter, limit, offset int) ([]model.Message, int, error)
	Stats(ctx context.Context) (model.Stats, error)
	Ping(ctx context.Context) error
}

type MessagesRepositoryImpl struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMessagesRepository(db *sqlx.DB) *MessagesRepositoryImpl {
	return &MessagesRepositoryImpl{db: db, now: time.Now}
}

var _ MessagesRepository = (*MessagesRepositoryImpl)(nil)

func (r *MessagesRepositoryImpl) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// Insert relies on the message_id primary key: concurrent inserts of one id race
// inside the engine, exactly one commits and the rest hit the constraint.
func (r *MessagesRepositoryImpl) Insert(ctx context.Context, m model.Message) (bool, error) {
	const q = `
		INSERT INTO messages
		    (message_id, from_msisdn, to_msisdn, ts, text, created_at)
		VALUES
		    (?,          ?,           ?,         ?,  ?,    ?)
	`
	createdAt := r.now().UTC().Format(CreatedAtLayout)
	_, err := r.db.ExecContext(ctx, r.db.Rebind(q),
		m.MessageID, m.From, m.To, m.TS, m.Text, createdAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert message: %w", err)
	}
	return true, nil
}

// List returns one page ordered by (ts, message_id) and the total number of
// matching rows. Both reads share a transaction so they see the same rows.
func (r *MessagesRepositoryImpl) List(ctx context.Context, f model.Filter, limit, offset int) ([]model.Message, int, error) {
	where, args := r.buildWhere(f)

	var (
		total int
		rows  []model.Message
	)
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM messages"+where), args...); err != nil {
			return fmt.Errorf("count messages: %w", err)
		}

		q := `
			SELECT message_id, from_msisdn, to_msisdn, ts, text, created_at
			FROM messages` + where + `
			ORDER BY ts ASC, message_id ASC
			LIMIT ? OFFSET ?`
		pageArgs := append(append([]any{}, args...), limit, offset)
		if err := tx.SelectContext(ctx, &rows, r.db.Rebind(q), pageArgs...); err != nil {
			return fmt.Errorf("select messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if rows == nil {
		rows = []model.Message{}
	}
	return rows, total, nil
}

func (r *MessagesRepositoryImpl) buildWhere(f model.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.From != "" {
		conds = append(conds, "from_msisdn = ?")
		args = append(args, f.From)
	}
	if f.Since != "" {
		conds = append(conds, "ts >= ?")
		args = append(args, f.Since)
	}
	if f.Q != "" {
		// NULL text never satisfies LIKE
		conds = append(conds, db.LowerExpr(r.db, "text")+" LIKE ? ESCAPE '!'")
		args = append(args, "%"+escapeLike(strings.ToLower(f.Q))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// Stats aggregates the whole table. first/last ts are string MIN/MAX, not parsed
// timestamps. Sender ties are broken by from_msisdn so the top list is stable.
func (r *MessagesRepositoryImpl) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var agg struct {
			Total   int     `db:"total"`
			Senders int     `db:"senders"`
			First   *string `db:"first_ts"`
			Last    *string `db:"last_ts"`
		}
		if err := tx.GetContext(ctx, &agg, `
			SELECT COUNT(*)                    AS total,
			       COUNT(DISTINCT from_msisdn) AS senders,
			       MIN(ts)                     AS first_ts,
			       MAX(ts)                     AS last_ts
			FROM messages
		`); err != nil {
			return fmt.Errorf("aggregate messages: %w", err)
		}

		var top []model.SenderCount
		if err := tx.SelectContext(ctx, &top, r.db.Rebind(`
			SELECT from_msisdn, COUNT(*) AS cnt
			FROM messages
			GROUP BY from_msisdn
			ORDER BY cnt DESC, from_msisdn ASC
			LIMIT ?
		`), TopSenders); err != nil {
			return fmt.Errorf("top senders: %w", err)
		}
		if top == nil {
			top = []model.SenderCount{}
		}

		st = model.Stats{
			TotalMessages:     agg.Total,
			SendersCount:      agg.Senders,
			MessagesPerSender: top,
			FirstMessageTS:    agg.First,
			LastMessageTS:     agg.Last,
		}
		return nil
	})
	return st, err
}

// Ping runs a trivial query so a broken pool or missing database file surfaces.
func (r *MessagesRepositoryImpl) Ping(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "SELECT 1")
	return err
}
