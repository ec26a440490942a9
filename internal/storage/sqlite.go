package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rallybot/internal/game"
	logx "rallybot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config selects the database file and connection behavior.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the SQLite database and runs migrations.
func Open(cfg Config, log logx.Logger) (game.Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Scaffolds ----

func (s *sqliteStore) CreateScaffold(ctx context.Context, sc game.Scaffold) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scaffolds(id, weekday, hour, minute, courts, active, announce_override, owner_id, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sc.ID, int(sc.Weekday), sc.Hour, sc.Minute, sc.Courts, boolInt(sc.Active),
		sc.AnnounceOverride, sc.OwnerID, unix(sc.CreatedAt), unix(sc.UpdatedAt),
	)
	return err
}

const scaffoldCols = `id, weekday, hour, minute, courts, active, announce_override, owner_id, created_at, updated_at`

func (s *sqliteStore) FindScaffoldByID(ctx context.Context, id string) (game.Scaffold, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scaffoldCols+` FROM scaffolds WHERE id = ?`, id)
	return scanScaffold(row)
}

func (s *sqliteStore) ListScaffolds(ctx context.Context, activeOnly bool) ([]game.Scaffold, error) {
	q := `SELECT ` + scaffoldCols + ` FROM scaffolds`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY weekday, hour, minute`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Scaffold
	for rows.Next() {
		sc, err := scanScaffold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateScaffold(ctx context.Context, sc game.Scaffold) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scaffolds SET weekday=?, hour=?, minute=?, courts=?, active=?, announce_override=?, owner_id=?, updated_at=?
		 WHERE id = ?`,
		int(sc.Weekday), sc.Hour, sc.Minute, sc.Courts, boolInt(sc.Active),
		sc.AnnounceOverride, sc.OwnerID, unix(sc.UpdatedAt), sc.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScaffold(row rowScanner) (game.Scaffold, error) {
	var (
		sc       game.Scaffold
		weekday  int
		active   int
		created  int64
		updated  int64
	)
	err := row.Scan(&sc.ID, &weekday, &sc.Hour, &sc.Minute, &sc.Courts, &active,
		&sc.AnnounceOverride, &sc.OwnerID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Scaffold{}, game.ErrNotFound
	}
	if err != nil {
		return game.Scaffold{}, err
	}
	sc.Weekday = time.Weekday(weekday)
	sc.Active = active != 0
	sc.CreatedAt = fromUnix(created)
	sc.UpdatedAt = fromUnix(updated)
	return sc, nil
}

// ---- Events ----

const eventCols = `id, scaffold_id, start_at, courts, status, chat_id, message_id,
	announce_override, owner_id, announced_at, reminded_at, roster_locked_at,
	deleted_at, created_at, updated_at`

func (s *sqliteStore) CreateEvent(ctx context.Context, ev game.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, scaffold_id, start_at, courts, status, chat_id, message_id,
		   announce_override, owner_id, announced_at, reminded_at, roster_locked_at,
		   deleted_at, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,NULL,?,?)`,
		ev.ID, ev.ScaffoldID, unix(ev.StartAt), ev.Courts, string(ev.Status),
		ev.ChatID, ev.MessageID, ev.AnnounceOverride, ev.OwnerID,
		nullUnix(ev.AnnouncedAt), nullUnix(ev.RemindedAt), nullUnix(ev.RosterLockedAt),
		unix(ev.CreatedAt), unix(ev.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return game.ErrDuplicateOccurrence
	}
	return err
}

func (s *sqliteStore) FindEventByID(ctx context.Context, id string) (game.EventRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

func (s *sqliteStore) ListEvents(ctx context.Context, from time.Time) ([]game.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE start_at >= ? ORDER BY start_at`,
		unix(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.EventRecord
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateEvent(ctx context.Context, rec game.EventRecord) error {
	ev := rec.Event
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET scaffold_id=?, start_at=?, courts=?, status=?, chat_id=?, message_id=?,
		   announce_override=?, owner_id=?, announced_at=?, reminded_at=?, roster_locked_at=?,
		   deleted_at=?, updated_at=?
		 WHERE id = ?`,
		ev.ScaffoldID, unix(ev.StartAt), ev.Courts, string(ev.Status), ev.ChatID, ev.MessageID,
		ev.AnnounceOverride, ev.OwnerID,
		nullUnix(ev.AnnouncedAt), nullUnix(ev.RemindedAt), nullUnix(ev.RosterLockedAt),
		nullUnix(rec.DeletedAt), unix(ev.UpdatedAt), ev.ID,
	)
	if isUniqueViolation(err) {
		return game.ErrDuplicateOccurrence
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanEvent(row rowScanner) (game.EventRecord, error) {
	var (
		rec       game.EventRecord
		status    string
		announced sql.NullInt64
		reminded  sql.NullInt64
		locked    sql.NullInt64
		deleted   sql.NullInt64
		created   int64
		updated   int64
		startAt   int64
	)
	ev := &rec.Event
	err := row.Scan(&ev.ID, &ev.ScaffoldID, &startAt, &ev.Courts, &status,
		&ev.ChatID, &ev.MessageID, &ev.AnnounceOverride, &ev.OwnerID,
		&announced, &reminded, &locked, &deleted, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return game.EventRecord{}, game.ErrNotFound
	}
	if err != nil {
		return game.EventRecord{}, err
	}
	ev.StartAt = fromUnix(startAt)
	ev.Status = game.Status(status)
	ev.AnnouncedAt = fromNullUnix(announced)
	ev.RemindedAt = fromNullUnix(reminded)
	ev.RosterLockedAt = fromNullUnix(locked)
	rec.DeletedAt = fromNullUnix(deleted)
	ev.CreatedAt = fromUnix(created)
	ev.UpdatedAt = fromUnix(updated)
	return rec, nil
}

// ---- Participants ----

func (s *sqliteStore) AddParticipant(ctx context.Context, p game.Participant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO participants(event_id, user_id, username, guests, joined_at)
		 VALUES(?,?,?,?,?)`,
		p.EventID, p.UserID, p.Username, p.Guests, unix(p.JoinedAt),
	)
	return err
}

func (s *sqliteStore) RemoveParticipant(ctx context.Context, eventID string, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM participants WHERE event_id = ? AND user_id = ?`, eventID, userID)
	return err
}

func (s *sqliteStore) SetGuests(ctx context.Context, eventID string, userID int64, guests int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET guests = ? WHERE event_id = ? AND user_id = ?`,
		guests, eventID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) ListParticipants(ctx context.Context, eventID string) ([]game.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, username, guests, joined_at
		 FROM participants WHERE event_id = ? ORDER BY joined_at, user_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []game.Participant
	for rows.Next() {
		var (
			p      game.Participant
			joined int64
		)
		if err := rows.Scan(&p.EventID, &p.UserID, &p.Username, &p.Guests, &joined); err != nil {
			return nil, err
		}
		p.JoinedAt = fromUnix(joined)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- helpers ----

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func fromNullUnix(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
