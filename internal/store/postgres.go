package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/metrics"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
)

// MeetingStore is the durable collaborator behind the collaboration core.
// It is a simple key-based fetch/store layer; schema design and migrations
// live with the surrounding CRUD application.
type MeetingStore struct {
	pool *pgxpool.Pool
}

// NewMeetingStore creates a meeting store with a connection pool.
func NewMeetingStore(ctx context.Context, databaseURL string) (*MeetingStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &MeetingStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *MeetingStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *MeetingStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetMeeting retrieves a meeting by ID. Returns nil when not found.
func (s *MeetingStore) GetMeeting(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	start := time.Now()
	defer func() { metrics.PostgresLatency.Observe(time.Since(start).Seconds()) }()

	meeting := &models.Meeting{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, is_private, created_at, last_active_at, closed_at
		FROM meetings WHERE id = $1
	`, id).Scan(
		&meeting.ID,
		&meeting.Title,
		&meeting.IsPrivate,
		&meeting.CreatedAt,
		&meeting.LastActiveAt,
		&meeting.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return meeting, nil
}

// GetMeetingPasscodeHash retrieves the bcrypt passcode hash for a private
// meeting. Empty string means no passcode is set.
func (s *MeetingStore) GetMeetingPasscodeHash(ctx context.Context, id uuid.UUID) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx, `
		SELECT passcode_hash FROM meetings WHERE id = $1
	`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if hash == nil {
		return "", nil
	}
	return *hash, nil
}

// TouchMeeting updates the last_active_at timestamp.
func (s *MeetingStore) TouchMeeting(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE meetings SET last_active_at = NOW() WHERE id = $1
	`, id)
	return err
}

// CloseMeeting stamps closed_at when a room is torn down. Idempotent.
func (s *MeetingStore) CloseMeeting(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE meetings
		SET closed_at = COALESCE(closed_at, NOW()), last_active_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// AppendTranscriptSegment stores one durable transcript fragment.
func (s *MeetingStore) AppendTranscriptSegment(ctx context.Context, seg *models.TranscriptSegment) error {
	start := time.Now()
	defer func() { metrics.PostgresLatency.Observe(time.Since(start).Seconds()) }()

	if seg.ID == "" {
		seg.ID = ulid.Make().String()
	}
	if seg.Timestamp == 0 {
		seg.Timestamp = time.Now().UnixMilli()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_segments (id, meeting_id, speaker, text, seq, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, seg.ID, seg.MeetingID, seg.Speaker, seg.Text, seg.Seq, seg.Timestamp)
	return err
}

// GetTranscriptSegments retrieves transcript fragments for a meeting in
// sequence order, capped at limit.
func (s *MeetingStore) GetTranscriptSegments(ctx context.Context, meetingID uuid.UUID, limit int) ([]models.TranscriptSegment, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, meeting_id, speaker, text, seq, ts
		FROM transcript_segments
		WHERE meeting_id = $1
		ORDER BY seq ASC
		LIMIT $2
	`, meetingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []models.TranscriptSegment
	for rows.Next() {
		var seg models.TranscriptSegment
		err := rows.Scan(
			&seg.ID,
			&seg.MeetingID,
			&seg.Speaker,
			&seg.Text,
			&seg.Seq,
			&seg.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}

	return segments, rows.Err()
}
