package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/social-publisher/internal/models"
)

// Repository provides access to the publish history store.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new repository over an open connection.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// RecordResult appends one destination outcome to the history. The error
// string must already be redacted by the caller.
func (r *Repository) RecordResult(ctx context.Context, contentID, campaignID string, result *models.DestinationResult) (*models.PublishHistory, error) {
	history := &models.PublishHistory{
		ID:          uuid.New(),
		ContentID:   contentID,
		CampaignID:  campaignID,
		Destination: result.Destination,
		Status:      result.Status,
		PostID:      result.PostID,
		PostURL:     result.PostURL,
		Error:       result.Error,
		PublishedAt: result.Timestamp,
	}
	if history.PublishedAt.IsZero() {
		history.PublishedAt = time.Now()
	}

	query := `
		INSERT INTO publish_history (id, content_id, campaign_id, destination, status, post_id, post_url, error, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, content_id, campaign_id, destination, status, post_id, post_url, error, published_at
	`

	err := r.db.QueryRowxContext(
		ctx, query,
		history.ID, history.ContentID, history.CampaignID, history.Destination,
		history.Status, history.PostID, history.PostURL, history.Error, history.PublishedAt,
	).StructScan(history)

	if err != nil {
		return nil, fmt.Errorf("failed to record publish result: %w", err)
	}

	return history, nil
}

// ListHistory retrieves publish history with optional filters
func (r *Repository) ListHistory(ctx context.Context, filter *models.PublishHistoryFilter) ([]models.PublishHistory, error) {
	history := []models.PublishHistory{}

	// Default pagination
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	const maxLimit = 1000
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	// Build query dynamically
	query := `
		SELECT id, content_id, campaign_id, destination, status, post_id, post_url, error, published_at
		FROM publish_history
		WHERE 1=1
	`

	args := []any{}
	argPos := 1

	if filter.ContentID != "" {
		query += fmt.Sprintf(" AND content_id = $%d", argPos)
		args = append(args, filter.ContentID)
		argPos++
	}

	if filter.Destination != "" {
		query += fmt.Sprintf(" AND destination = $%d", argPos)
		args = append(args, filter.Destination)
		argPos++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(" AND published_at >= $%d", argPos)
		args = append(args, *filter.StartDate)
		argPos++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(" AND published_at <= $%d", argPos)
		args = append(args, *filter.EndDate)
		argPos++
	}

	// Order and pagination
	query += " ORDER BY published_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	err := r.db.SelectContext(ctx, &history, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list publish history: %w", err)
	}

	return history, nil
}

// CheckPublished checks if a content item was already published to a destination
func (r *Repository) CheckPublished(ctx context.Context, contentID, destination string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM publish_history
			WHERE content_id = $1 AND destination = $2 AND status = 'published'
		)
	`

	err := r.db.GetContext(ctx, &exists, query, contentID, destination)
	if err != nil {
		return false, fmt.Errorf("failed to check if content published: %w", err)
	}

	return exists, nil
}

// GetPublishStats retrieves per-destination publish counts
func (r *Repository) GetPublishStats(ctx context.Context, startDate, endDate *time.Time) (map[string]int, error) {
	query := `
		SELECT destination, COUNT(*) as count
		FROM publish_history
		WHERE status = 'published'
	`

	args := []any{}
	argPos := 1

	if startDate != nil {
		query += fmt.Sprintf(" AND published_at >= $%d", argPos)
		args = append(args, *startDate)
		argPos++
	}

	if endDate != nil {
		query += fmt.Sprintf(" AND published_at <= $%d", argPos)
		args = append(args, *endDate)
	}

	query += " GROUP BY destination ORDER BY count DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get publish stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var destination string
		var count int
		if scanErr := rows.Scan(&destination, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan row: %w", scanErr)
		}
		stats[destination] = count
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("row iteration error: %w", rowsErr)
	}

	return stats, nil
}
