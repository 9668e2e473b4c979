package cases

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/thistle/pkg/apperrors"
	"github.com/Ramsey-B/thistle/pkg/database"
	"github.com/Ramsey-B/thistle/pkg/logging"
	"github.com/Ramsey-B/thistle/pkg/models"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Repository handles case persistence
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new case repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a case, generating an id when none is set
func (r *Repository) Create(ctx context.Context, c *models.Case) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Create")
	defer span.End()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("cases")
	sb.Cols("id", "name", "created_at")
	sb.Values(c.ID, c.Name, c.CreatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create case", zap.Error(err))
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	return c, nil
}

// Get retrieves a case by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "created_at")
	sb.From("cases")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var c models.Case
	if err := database.Conn(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("case", id, "")
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get case", zap.String("case_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	return &c, nil
}

// List returns every case, newest first
func (r *Repository) List(ctx context.Context) ([]models.Case, error) {
	ctx, span := tracing.StartSpan(ctx, "cases.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "created_at")
	sb.From("cases")
	sb.OrderBy("created_at DESC", "id")

	query, args := sb.Build()
	cases := []models.Case{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &cases, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list cases", zap.Error(err))
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	return cases, nil
}
