package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/keyframes/internal/embeddings"
	"github.com/bdougie/keyframes/internal/models"
)

// PostgresStorage records runs, frames and analyses in PostgreSQL. Frame
// signatures are stored in a pgvector column for similarity search.
type PostgresStorage struct {
	pool       *pgxpool.Pool
	signatures *embeddings.Service
	videoID    int
	videoName  string
	runID      uuid.UUID
}

// NewPostgresStorage creates a new PostgreSQL storage connection for one video
func NewPostgresStorage(ctx context.Context, databaseURL, videoName string, signatures *embeddings.Service) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &PostgresStorage{
		pool:       pool,
		signatures: signatures,
		videoName:  videoName,
	}

	videoID, err := storage.getOrCreateVideo(ctx, videoName)
	if err != nil {
		pool.Close()
		return nil, err
	}
	storage.videoID = videoID

	return storage, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStorage) getOrCreateVideo(ctx context.Context, videoName string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM videos WHERE name = $1",
		videoName).Scan(&id)

	if err == nil {
		return id, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"INSERT INTO videos (name, created_at) VALUES ($1, $2) RETURNING id",
		videoName, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}

	return id, nil
}

// RecordRun stores the run and one row per sampled frame in a single transaction
func (s *PostgresStorage) RecordRun(ctx context.Context, run Run) error {
	if run.Result == nil {
		return fmt.Errorf("run %s has no extraction result", run.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	mode := ""
	if run.Policy.Mode != nil {
		mode = run.Policy.Mode.String()
	}
	plan := run.Result.Plan

	_, err = tx.Exec(ctx,
		`INSERT INTO runs
        (id, video_id, mode, max_frames, margin_fraction, trimmed_start, trimmed_frames, stride, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, s.videoID, mode, run.Policy.MaxFrames, run.Policy.MarginFraction,
		plan.TrimmedStart, plan.TrimmedFrames, plan.Stride, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	fps := run.Result.Metadata.FrameRate
	for i, path := range run.Result.FramePaths {
		index := run.Result.Indices[i]

		signature, err := s.generateSignature(path)
		if err != nil {
			return err
		}

		timestamp := 0.0
		if fps > 0 {
			timestamp = float64(index) / fps
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO frames
            (run_id, frame_number, frame_path, timestamp_seconds, signature, created_at)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, index, path, timestamp, pgvector.NewVector(signature), time.Now())
		if err != nil {
			return fmt.Errorf("failed to store frame %d: %w", index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.runID = run.ID
	return nil
}

// AddResult adds a frame analysis result to the database
func (s *PostgresStorage) AddResult(ctx context.Context, result models.AnalysisResult) error {
	if s.runID == uuid.Nil {
		return fmt.Errorf("no run recorded for video %s", s.videoName)
	}

	var frameID int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM frames WHERE run_id = $1 AND frame_number = $2",
		s.runID, result.SourceIndex).Scan(&frameID)
	if err != nil {
		return fmt.Errorf("failed to find frame %d: %w", result.SourceIndex, err)
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO analyses (frame_id, content, created_at) VALUES ($1, $2, $3)",
		frameID, result.Content, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}

	return nil
}

// SaveSummary stores the summary on the current run
func (s *PostgresStorage) SaveSummary(ctx context.Context, summary string) error {
	if s.runID == uuid.Nil {
		return fmt.Errorf("no run recorded for video %s", s.videoName)
	}

	_, err := s.pool.Exec(ctx, "UPDATE runs SET summary = $2 WHERE id = $1", s.runID, summary)
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return nil
}

// Flush is a no-op for Postgres as results are saved immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

func (s *PostgresStorage) generateSignature(path string) ([]float32, error) {
	if s.signatures == nil {
		return embeddings.FileSignature(path)
	}
	res := <-s.signatures.GetSignature(path)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to compute signature of '%s': %w", path, res.Error)
	}
	return res.Signature, nil
}

// SearchSimilarFrames finds stored frames whose signature is closest to the
// signature of the image at imagePath, across all videos
func SearchSimilarFrames(ctx context.Context, databaseURL, imagePath string, limit int) ([]models.FrameSearchResult, error) {
	signature, err := embeddings.FileSignature(imagePath)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx,
		`SELECT v.name, f.frame_number, f.frame_path, COALESCE(a.content, ''),
        1 - (f.signature <=> $1) AS similarity
        FROM frames f
        JOIN runs r ON f.run_id = r.id
        JOIN videos v ON r.video_id = v.id
        LEFT JOIN analyses a ON a.frame_id = f.id
        ORDER BY f.signature <=> $1
        LIMIT $2`,
		pgvector.NewVector(signature), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar frames: %w", err)
	}
	defer rows.Close()

	var results []models.FrameSearchResult
	for rows.Next() {
		var result models.FrameSearchResult
		if err := rows.Scan(&result.VideoName, &result.FrameNumber, &result.FramePath,
			&result.Description, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
		if err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS runs (
            id UUID PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            mode VARCHAR(64) NOT NULL,
            max_frames INTEGER NOT NULL,
            margin_fraction DOUBLE PRECISION NOT NULL,
            trimmed_start INTEGER NOT NULL,
            trimmed_frames INTEGER NOT NULL,
            stride INTEGER NOT NULL,
            summary TEXT,
            created_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            run_id UUID REFERENCES runs(id) ON DELETE CASCADE,
            frame_number INTEGER NOT NULL,
            frame_path VARCHAR(1024) NOT NULL,
            timestamp_seconds DOUBLE PRECISION NOT NULL,
            signature vector(%d),
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(run_id, frame_number)
        );

        CREATE TABLE IF NOT EXISTS analyses (
            id SERIAL PRIMARY KEY,
            frame_id INTEGER REFERENCES frames(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
    `, embeddings.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_runs_video_id ON runs(video_id);
        CREATE INDEX IF NOT EXISTS idx_frames_run_id ON frames(run_id);
        CREATE INDEX IF NOT EXISTS idx_analyses_frame_id ON analyses(frame_id);
        CREATE INDEX IF NOT EXISTS idx_frames_signature ON frames USING ivfflat (signature vector_cosine_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
