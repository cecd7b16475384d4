package train

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists session rows.
type Store struct {
	db *gorm.DB
}

// NewStore constructs the session row store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("train: database handle is required")
	}
	return &Store{db: db}, nil
}

// Upsert writes the row, replacing any prior version.
func (s *Store) Upsert(ctx context.Context, row Row) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Delete removes the row. Deleting an absent row is already satisfied.
func (s *Store) Delete(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Row{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// Get fetches one row by id.
func (s *Store) Get(ctx context.Context, id int64) (Row, bool, error) {
	var row Row
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, err
	}
	return row, true, nil
}

// List returns every persisted session row, used at process start.
func (s *Store) List(ctx context.Context) ([]Row, error) {
	var rows []Row
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
