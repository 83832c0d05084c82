// Package store provides PostgreSQL persistence for relearn processing
// state: which Drive files have been processed, and the text extracted
// from them.
package store

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/relearn/internal/workflow"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS processed_images (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		drive_file_id TEXT NOT NULL UNIQUE,
		processed_at TIMESTAMPTZ NOT NULL,
		moved_to_saved BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id UUID PRIMARY KEY,
		processed_image_id UUID NOT NULL UNIQUE REFERENCES processed_images(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		ocr_cached_at TIMESTAMPTZ NOT NULL,
		platform TEXT,
		character_count INTEGER NOT NULL
	)`,
}

// EnsureSchema creates the processing-state tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// ProcessedImage is one row of the processed_images table.
type ProcessedImage struct {
	ID           uuid.UUID
	FileName     string
	DriveFileID  string
	ProcessedAt  time.Time
	MovedToSaved bool
}

// Post is one row of the posts table, 1:1 with a ProcessedImage.
type Post struct {
	ID               uuid.UUID
	ProcessedImageID uuid.UUID
	Content          string
	OcrCachedAt      time.Time
	Platform         *string
	CharacterCount   int
}

// characterCount is the persisted length of extracted text, counted in
// runes so multibyte text is not inflated.
func characterCount(content string) int {
	return utf8.RuneCountInString(content)
}

// FilterUnprocessed returns the subset of ids that have no pending record,
// preserving input order. A record whose file was already archived does
// not count: archived-then-revived files are eligible for selection again.
func (s *Store) FilterUnprocessed(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT drive_file_id FROM processed_images
		 WHERE drive_file_id = ANY($1) AND moved_to_saved = FALSE`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed images: %w", err)
	}
	defer rows.Close()

	pending := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed image: %w", err)
		}
		pending[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read processed images: %w", err)
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !pending[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// IsProcessed reports whether a file has a pending processed record.
func (s *Store) IsProcessed(ctx context.Context, fileID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM processed_images
			WHERE drive_file_id = $1 AND moved_to_saved = FALSE
		 )`,
		fileID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed image: %w", err)
	}
	return exists, nil
}

// RecordProcessed upserts the processed record for a file and returns its
// row ID. At most one row exists per drive file ID: re-processing the same
// file refreshes the timestamp and resets the archived flag instead of
// inserting a second row.
func (s *Store) RecordProcessed(ctx context.Context, fileID, fileName string, processedAt time.Time) (uuid.UUID, error) {
	return s.upsertImage(ctx, s.pool, fileID, fileName, processedAt)
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) upsertImage(ctx context.Context, q execQuerier, fileID, fileName string, processedAt time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO processed_images (id, file_name, drive_file_id, processed_at, moved_to_saved)
		 VALUES ($1, $2, $3, $4, FALSE)
		 ON CONFLICT (drive_file_id) DO UPDATE
		 SET file_name = EXCLUDED.file_name, processed_at = EXCLUDED.processed_at, moved_to_saved = FALSE
		 RETURNING id`,
		uuid.New(), fileName, fileID, processedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert processed image: %w", err)
	}
	return id, nil
}

// SaveExtraction persists the processed record and the extracted text in
// one transaction so a half-written pair never survives.
func (s *Store) SaveExtraction(ctx context.Context, fileID, fileName, content string, extractedAt time.Time) (workflow.ExtractionRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return workflow.ExtractionRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	imageID, err := s.upsertImage(ctx, tx, fileID, fileName, extractedAt)
	if err != nil {
		return workflow.ExtractionRecord{}, err
	}

	var postID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO posts (id, processed_image_id, content, ocr_cached_at, character_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (processed_image_id) DO UPDATE
		 SET content = EXCLUDED.content, ocr_cached_at = EXCLUDED.ocr_cached_at, character_count = EXCLUDED.character_count
		 RETURNING id`,
		uuid.New(), imageID, content, extractedAt, characterCount(content),
	).Scan(&postID)
	if err != nil {
		return workflow.ExtractionRecord{}, fmt.Errorf("failed to upsert post: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return workflow.ExtractionRecord{}, fmt.Errorf("failed to commit extraction: %w", err)
	}
	return workflow.ExtractionRecord{ImageID: imageID, PostID: postID}, nil
}

// MarkArchived flips the archived flag on a file's record.
func (s *Store) MarkArchived(ctx context.Context, fileID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE processed_images SET moved_to_saved = TRUE WHERE drive_file_id = $1`,
		fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark image archived: %w", err)
	}
	return nil
}

// UpdatePostContent refreshes a post's content, extraction timestamp and
// character count together, as one write.
func (s *Store) UpdatePostContent(ctx context.Context, postID uuid.UUID, content string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET content = $2, ocr_cached_at = $3, character_count = $4 WHERE id = $1`,
		postID, content, at, characterCount(content),
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %s not found", postID)
	}
	return nil
}

// GetImage retrieves the processed record for a file, or nil when absent.
func (s *Store) GetImage(ctx context.Context, fileID string) (*ProcessedImage, error) {
	var img ProcessedImage
	err := s.pool.QueryRow(ctx,
		`SELECT id, file_name, drive_file_id, processed_at, moved_to_saved
		 FROM processed_images WHERE drive_file_id = $1`,
		fileID,
	).Scan(&img.ID, &img.FileName, &img.DriveFileID, &img.ProcessedAt, &img.MovedToSaved)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get processed image: %w", err)
	}
	return &img, nil
}

// GetPostByImage retrieves the post for a file, or nil when absent.
func (s *Store) GetPostByImage(ctx context.Context, fileID string) (*Post, error) {
	var post Post
	err := s.pool.QueryRow(ctx,
		`SELECT p.id, p.processed_image_id, p.content, p.ocr_cached_at, p.platform, p.character_count
		 FROM posts p
		 JOIN processed_images i ON i.id = p.processed_image_id
		 WHERE i.drive_file_id = $1`,
		fileID,
	).Scan(&post.ID, &post.ProcessedImageID, &post.Content, &post.OcrCachedAt, &post.Platform, &post.CharacterCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &post, nil
}

// CountImages returns the number of processed-image rows.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_images`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count processed images: %w", err)
	}
	return n, nil
}

// CountPosts returns the number of post rows.
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// DeleteImage removes a processed record (and its post, via cascade).
// Only used by the db-check probe; normal operation never deletes rows.
func (s *Store) DeleteImage(ctx context.Context, fileID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM processed_images WHERE drive_file_id = $1`,
		fileID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete processed image: %w", err)
	}
	return nil
}
