package globalperson

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

var (
	personColumns     = []string{"id", "display_name", "created_at", "updated_at"}
	aliasColumns      = []string{"id", "global_entity_id", "alias", "alias_normalized", "created_at"}
	identifierColumns = []string{"id", "global_entity_id", "type", "value_raw", "value_normalized", "created_at"}
)

// Repository handles the cross-case registry: global persons, their aliases and
// their globally unique identifiers.
type Repository struct {
	db     database.DB
	logger *zap.Logger
}

// NewRepository creates a new global person repository
func NewRepository(db database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, person *models.GlobalPerson) (*models.GlobalPerson, error) {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.Create")
	defer span.End()

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	person.CreatedAt = database.Now()
	person.UpdatedAt = person.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("global_persons")
	sb.Cols(personColumns...)
	sb.Values(person.ID, person.DisplayName, person.CreatedAt, person.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to create global person", zap.Error(err))
		return nil, fmt.Errorf("failed to create global person: %w", err)
	}

	return person, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.GlobalPerson, error) {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(personColumns...)
	sb.From("global_persons")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var person models.GlobalPerson
	if err := database.Conn(ctx, r.db).GetContext(ctx, &person, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("global person", id, "")
		}
		logging.WithContext(ctx, r.logger).Error("Failed to get global person", zap.String("global_entity_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get global person: %w", err)
	}

	return &person, nil
}

// Touch bumps updated_at.
func (r *Repository) Touch(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.Touch")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("global_persons")
	sb.Set(sb.Assign("updated_at", database.Now()))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to touch global person: %w", err)
	}
	return nil
}

// AddAlias adds an alias unless the normalized form is already present.
func (r *Repository) AddAlias(ctx context.Context, alias *models.GlobalPersonAlias) error {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.AddAlias")
	defer span.End()

	if alias.ID == "" {
		alias.ID = uuid.New().String()
	}
	alias.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("global_person_aliases")
	sb.Cols(aliasColumns...)
	sb.Values(alias.ID, alias.GlobalEntityID, alias.Alias, alias.AliasNormalized, alias.CreatedAt)

	query, args := sb.Build()
	query += database.OnConflictDoNothing()

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to add global person alias", zap.String("global_entity_id", alias.GlobalEntityID), zap.Error(err))
		return fmt.Errorf("failed to add global person alias: %w", err)
	}
	return nil
}

func (r *Repository) ListAliases(ctx context.Context, globalEntityID string) ([]models.GlobalPersonAlias, error) {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.ListAliases")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(aliasColumns...)
	sb.From("global_person_aliases")
	sb.Where(sb.Equal("global_entity_id", globalEntityID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	aliases := []models.GlobalPersonAlias{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &aliases, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list global person aliases", zap.Error(err))
		return nil, fmt.Errorf("failed to list global person aliases: %w", err)
	}
	return aliases, nil
}

// FindIdentifier returns the global owner row for (type, value), or nil when the
// value is not registered to anyone.
func (r *Repository) FindIdentifier(ctx context.Context, idType models.IdentifierType, normalized string) (*models.GlobalPersonIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.FindIdentifier")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(identifierColumns...)
	sb.From("global_person_identifiers")
	sb.Where(sb.Equal("type", idType), sb.Equal("value_normalized", normalized))

	query, args := sb.Build()
	var ident models.GlobalPersonIdentifier
	if err := database.Conn(ctx, r.db).GetContext(ctx, &ident, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		logging.WithContext(ctx, r.logger).Error("Failed to find global identifier", zap.String("type", string(idType)), zap.Error(err))
		return nil, fmt.Errorf("failed to find global identifier: %w", err)
	}
	return &ident, nil
}

func (r *Repository) AddIdentifier(ctx context.Context, ident *models.GlobalPersonIdentifier) error {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.AddIdentifier")
	defer span.End()

	if ident.ID == "" {
		ident.ID = uuid.New().String()
	}
	ident.CreatedAt = database.Now()

	sb := database.NewInsertBuilder()
	sb.InsertInto("global_person_identifiers")
	sb.Cols(identifierColumns...)
	sb.Values(ident.ID, ident.GlobalEntityID, ident.Type, ident.ValueRaw, ident.ValueNormalized, ident.CreatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to add global identifier",
			zap.String("global_entity_id", ident.GlobalEntityID), zap.String("type", string(ident.Type)), zap.Error(err))
		return fmt.Errorf("failed to add global identifier: %w", err)
	}
	return nil
}

// MoveIdentifier hands a global identifier row to another global person.
func (r *Repository) MoveIdentifier(ctx context.Context, id, globalEntityID string) error {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.MoveIdentifier")
	defer span.End()

	sb := database.NewUpdateBuilder()
	sb.Update("global_person_identifiers")
	sb.Set(sb.Assign("global_entity_id", globalEntityID))
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to move global identifier", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to move global identifier: %w", err)
	}
	return nil
}

func (r *Repository) ListIdentifiers(ctx context.Context, globalEntityID string) ([]models.GlobalPersonIdentifier, error) {
	ctx, span := tracing.StartSpan(ctx, "globalperson.Repository.ListIdentifiers")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(identifierColumns...)
	sb.From("global_person_identifiers")
	sb.Where(sb.Equal("global_entity_id", globalEntityID))
	sb.OrderBy("type", "value_normalized")

	query, args := sb.Build()
	idents := []models.GlobalPersonIdentifier{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &idents, query, args...); err != nil {
		logging.WithContext(ctx, r.logger).Error("Failed to list global identifiers", zap.Error(err))
		return nil, fmt.Errorf("failed to list global identifiers: %w", err)
	}
	return idents, nil
}
