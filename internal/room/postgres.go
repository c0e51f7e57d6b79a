package room

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store needs; tests substitute fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func AutoMigrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS users (
          id                    uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          username              TEXT NOT NULL DEFAULT '',
          provider_access_token  TEXT NOT NULL DEFAULT '',
          provider_refresh_token TEXT NOT NULL DEFAULT '',
          created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS rooms (
          id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          owner_id      uuid NOT NULL,
          name          TEXT NOT NULL,
          max_members   INT NOT NULL DEFAULT 50,
          is_private    BOOLEAN NOT NULL DEFAULT FALSE,
          password_hash TEXT NOT NULL DEFAULT '',
          playback_host_id       uuid,
          active_device_id       TEXT,
          is_playing             BOOLEAN NOT NULL DEFAULT FALSE,
          current_queue_entry_id uuid,
          current_position_ms    INT NOT NULL DEFAULT 0,
          created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS tracks (
          id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          external_id TEXT NOT NULL UNIQUE,
          title       TEXT NOT NULL,
          artists     TEXT[] NOT NULL DEFAULT '{}',
          duration_ms INT NOT NULL DEFAULT 0,
          is_playable BOOLEAN NOT NULL DEFAULT TRUE,
          uri         TEXT NOT NULL DEFAULT '',
          created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
      )
    `); err != nil {
		return err
	}

	// The order uniqueness check is deferred to commit time so a reorder
	// transaction can renumber rows through states that would collide under
	// a per-statement index.
	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS queue_entries (
          id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
          room_id        uuid NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
          track_id       uuid NOT NULL REFERENCES tracks(id),
          order_in_queue INT NOT NULL,
          added_by       uuid NOT NULL,
          added_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
          CONSTRAINT queue_entries_room_order_key
              UNIQUE (room_id, order_in_queue) DEFERRABLE INITIALLY DEFERRED
      )
    `); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS room_members (
          room_id    uuid NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
          user_id    uuid NOT NULL,
          role       TEXT NOT NULL DEFAULT 'MEMBER',
          created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
          PRIMARY KEY (room_id, user_id)
      )
    `); err != nil {
		return err
	}

	return nil
}

const roomColumns = `
	id, owner_id, name, max_members, is_private, password_hash,
	playback_host_id, active_device_id, is_playing,
	current_queue_entry_id, current_position_ms, created_at`

func scanRoom(row pgx.Row, r *Room) error {
	return row.Scan(
		&r.ID, &r.OwnerID, &r.Name, &r.MaxMembers, &r.IsPrivate, &r.PasswordHash,
		&r.PlaybackHostID, &r.ActiveDeviceID, &r.IsPlaying,
		&r.CurrentQueueEntryID, &r.CurrentPositionMS, &r.CreatedAt,
	)
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var r Room
	err := scanRoom(s.db.QueryRow(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE id = $1
	`, roomID), &r)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListActiveRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE playback_host_id IS NOT NULL AND is_playing
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		if err := scanRoom(rows, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SavePlayback(ctx context.Context, r *Room) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE rooms
		SET playback_host_id = $2,
		    active_device_id = $3,
		    is_playing = $4,
		    current_queue_entry_id = $5,
		    current_position_ms = $6
		WHERE id = $1
	`, r.ID, r.PlaybackHostID, r.ActiveDeviceID, r.IsPlaying,
		r.CurrentQueueEntryID, r.CurrentPositionMS)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

const entryColumns = `
	e.id, e.room_id, e.track_id, e.order_in_queue, e.added_by, e.added_at,
	t.id, t.external_id, t.title, t.artists, t.duration_ms, t.is_playable,
	t.uri, t.created_at`

func scanEntry(row pgx.Row, e *QueueEntry) error {
	var t Track
	err := row.Scan(
		&e.ID, &e.RoomID, &e.TrackID, &e.OrderInQueue, &e.AddedBy, &e.AddedAt,
		&t.ID, &t.ExternalID, &t.Title, &t.Artists, &t.DurationMS, &t.IsPlayable,
		&t.URI, &t.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.Track = &t
	return nil
}

func (s *PostgresStore) GetQueueEntries(ctx context.Context, roomID string) ([]QueueEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries e
		JOIN tracks t ON t.id = e.track_id
		WHERE e.room_id = $1
		ORDER BY e.order_in_queue ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetQueueEntry(ctx context.Context, entryID string) (*QueueEntry, error) {
	var e QueueEntry
	err := scanEntry(s.db.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries e
		JOIN tracks t ON t.id = e.track_id
		WHERE e.id = $1
	`, entryID), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) InsertQueueEntry(ctx context.Context, e *QueueEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO queue_entries (id, room_id, track_id, order_in_queue, added_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING added_at
	`, e.ID, e.RoomID, e.TrackID, e.OrderInQueue, e.AddedBy).Scan(&e.AddedAt)
}

// ReorderQueueEntries rewrites the room's queue to exactly entryIDs in that
// order; entries of the room not listed are deleted. The whole rewrite runs
// in one transaction so a failure mid-pass never persists a partial
// renumbering, and the deferred unique constraint is only checked at commit.
func (s *PostgresStore) ReorderQueueEntries(ctx context.Context, roomID string, entryIDs []string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, id := range entryIDs {
		tag, err := tx.Exec(ctx, `
			UPDATE queue_entries SET order_in_queue = $3
			WHERE id = $1 AND room_id = $2
		`, id, roomID, i)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
	}

	if len(entryIDs) == 0 {
		_, err = tx.Exec(ctx, `
			DELETE FROM queue_entries WHERE room_id = $1
		`, roomID)
	} else {
		_, err = tx.Exec(ctx, `
			DELETE FROM queue_entries WHERE room_id = $1 AND NOT (id = ANY($2))
		`, roomID, entryIDs)
	}
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanTrack(row pgx.Row, t *Track) error {
	return row.Scan(
		&t.ID, &t.ExternalID, &t.Title, &t.Artists, &t.DurationMS,
		&t.IsPlayable, &t.URI, &t.CreatedAt,
	)
}

func (s *PostgresStore) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	var t Track
	err := scanTrack(s.db.QueryRow(ctx, `
		SELECT id, external_id, title, artists, duration_ms, is_playable, uri, created_at
		FROM tracks
		WHERE id = $1
	`, trackID), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTrackByExternalID(ctx context.Context, externalID string) (*Track, error) {
	var t Track
	err := scanTrack(s.db.QueryRow(ctx, `
		SELECT id, external_id, title, artists, duration_ms, is_playable, uri, created_at
		FROM tracks
		WHERE external_id = $1
	`, externalID), &t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) InsertTrack(ctx context.Context, t *Track) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.db.QueryRow(ctx, `
		INSERT INTO tracks (id, external_id, title, artists, duration_ms, is_playable, uri)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_id) DO UPDATE SET external_id = EXCLUDED.external_id
		RETURNING id, created_at
	`, t.ID, t.ExternalID, t.Title, t.Artists, t.DurationMS, t.IsPlayable, t.URI).
		Scan(&t.ID, &t.CreatedAt)
}

func (s *PostgresStore) GetRole(ctx context.Context, roomID, userID string) (Role, error) {
	var role Role
	err := s.db.QueryRow(ctx, `
		SELECT role
		FROM room_members
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

func (s *PostgresStore) GetProviderCredentials(ctx context.Context, userID string) (*Credentials, error) {
	c := Credentials{UserID: userID}
	err := s.db.QueryRow(ctx, `
		SELECT provider_access_token, provider_refresh_token
		FROM users
		WHERE id = $1
	`, userID).Scan(&c.AccessToken, &c.RefreshToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
