package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyvoice/internal/api"
	"storyvoice/internal/services"
)

// ErrNoSnapshot is returned when nothing has been mirrored for a user yet.
var ErrNoSnapshot = fmt.Errorf("%w: no catalog snapshot", services.ErrNotFound)

// Snapshot is one user's view of the backend at TakenAt.
type Snapshot struct {
	UserID             string
	TakenAt            time.Time
	Stories            []api.Story
	Recordings         []api.Recording
	RecordingsDegraded bool
}

// Save replaces the mirrored catalog and uid's recordings with snap. The
// catalog is shared across users; recordings are kept per user.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	ctx = ensureContext(ctx)
	uid := strings.TrimSpace(snap.UserID)
	if uid == "" {
		return errors.New("snapshot user id required")
	}
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM stories"); err != nil {
			return fmt.Errorf("clear stories: %w", err)
		}
		for i, story := range snap.Stories {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO stories (story_id, title, description, created_at, position) VALUES (?, ?, ?, ?, ?)`,
				story.StoryID, story.Title, story.Description, formatTime(story.CreatedAt.Time), i,
			); err != nil {
				return fmt.Errorf("insert story %s: %w", story.StoryID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM recordings WHERE user_id = ?", uid); err != nil {
			return fmt.Errorf("clear recordings: %w", err)
		}
		for i, rec := range snap.Recordings {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO recordings (recording_id, user_id, story_id, title, created_at, processed, position) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.RecordingID, uid, rec.StoryID, rec.Title, formatTime(rec.CreatedAt.Time), boolToInt(rec.Processed), i,
			); err != nil {
				return fmt.Errorf("insert recording %s: %w", rec.RecordingID, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (user_id, taken_at, recordings_degraded) VALUES (?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET taken_at = excluded.taken_at, recordings_degraded = excluded.recordings_degraded`,
			uid, formatTime(takenAt), boolToInt(snap.RecordingsDegraded),
		); err != nil {
			return fmt.Errorf("record snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the mirrored snapshot for uid, or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context, uid string) (*Snapshot, error) {
	ctx = ensureContext(ctx)
	uid = strings.TrimSpace(uid)

	var (
		takenRaw string
		degraded int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT taken_at, recordings_degraded FROM snapshots WHERE user_id = ?", uid,
	).Scan(&takenRaw, &degraded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	snap := &Snapshot{
		UserID:             uid,
		TakenAt:            parseTime(sql.NullString{String: takenRaw, Valid: true}),
		RecordingsDegraded: degraded != 0,
	}
	if snap.Stories, err = s.loadStories(ctx); err != nil {
		return nil, err
	}
	if snap.Recordings, err = s.loadRecordings(ctx, uid); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Store) loadStories(ctx context.Context) ([]api.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT story_id, title, description, created_at FROM stories ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer rows.Close()

	var stories []api.Story
	for rows.Next() {
		var (
			story   api.Story
			created sql.NullString
		)
		if err := rows.Scan(&story.StoryID, &story.Title, &story.Description, &created); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		story.CreatedAt = api.Timestamp{Time: parseTime(created)}
		stories = append(stories, story)
	}
	return stories, rows.Err()
}

func (s *Store) loadRecordings(ctx context.Context, uid string) ([]api.Recording, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT recording_id, story_id, title, created_at, processed FROM recordings WHERE user_id = ? ORDER BY position", uid)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var recordings []api.Recording
	for rows.Next() {
		var (
			rec       api.Recording
			created   sql.NullString
			processed int
		)
		if err := rows.Scan(&rec.RecordingID, &rec.StoryID, &rec.Title, &created, &processed); err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		rec.CreatedAt = api.Timestamp{Time: parseTime(created)}
		rec.Processed = processed != 0
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}

// PurgeRecording drops a recording the backend has deleted.
func (s *Store) PurgeRecording(ctx context.Context, recordingID string) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM recordings WHERE recording_id = ?", recordingID)
		return err
	})
}

// PurgeStory drops a deleted story and every mirrored recording of it.
func (s *Store) PurgeStory(ctx context.Context, storyID string) error {
	ctx = ensureContext(ctx)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM recordings WHERE story_id = ?", storyID); err != nil {
			return fmt.Errorf("purge recordings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM stories WHERE story_id = ?", storyID); err != nil {
			return fmt.Errorf("purge story: %w", err)
		}
		return nil
	})
}

// Clear removes every mirrored row.
func (s *Store) Clear(ctx context.Context) error {
	ctx = ensureContext(ctx)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"recordings", "stories", "snapshots"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw sql.NullString) time.Time {
	if !raw.Valid || raw.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
