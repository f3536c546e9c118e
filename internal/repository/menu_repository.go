package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/dinedesk/dinedesk/internal/database"
	"github.com/dinedesk/dinedesk/internal/models"
	"github.com/dinedesk/dinedesk/pkg/logger"
)

// MenuRepository reads the menu. The menu is seeded at startup and edited
// outside this service; orders only need lookups.
type MenuRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewMenuRepository creates a new MenuRepository
func NewMenuRepository(db *database.Database, logger logger.Logger) *MenuRepository {
	return &MenuRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves all menu items
func (r *MenuRepository) List(ctx context.Context) ([]models.MenuItem, error) {
	var items []models.MenuItem

	err := r.db.DB.SelectContext(
		ctx,
		&items,
		`SELECT id, name, category, price FROM menu_items ORDER BY category, name`,
	)

	if err != nil {
		r.logger.Error("Failed to list menu items", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return items, nil
}

// GetByIDs retrieves the menu items with the given ids, keyed by id.
// Unknown ids are simply absent from the result; the caller decides
// whether that is an error.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.MenuItem, error) {
	result := make(map[int64]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var items []models.MenuItem

	err := r.db.DB.SelectContext(
		ctx,
		&items,
		`SELECT id, name, category, price FROM menu_items WHERE id = ANY($1)`,
		pq.Array(ids),
	)

	if err != nil {
		r.logger.Error("Failed to get menu items", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	for _, item := range items {
		result[item.ID] = item
	}

	return result, nil
}
