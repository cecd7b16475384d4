package rsvp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is one member's durable attendance row for a train.
type Record struct {
	TrainID       int64 `gorm:"column:train_id;primaryKey"`
	MemberID      int64 `gorm:"column:member_id;primaryKey"`
	CountMystic   int   `gorm:"column:count_mystic;not null;default:0"`
	CountInstinct int   `gorm:"column:count_instinct;not null;default:0"`
	CountValor    int   `gorm:"column:count_valor;not null;default:0"`
	CountUnknown  int   `gorm:"column:count_unknown;not null;default:0"`
	UpdatedAtSecs int64 `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "train_rsvp"
}

// Party converts the row columns back into a party vector.
func (r Record) Party() Party {
	return Party{r.CountMystic, r.CountInstinct, r.CountValor, r.CountUnknown}
}

// StoreConfig describes the dependencies of the attendance store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store persists attendance records keyed by (train, member).
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs the attendance store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("rsvp: database handle is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// Upsert replaces the member's attendance record for the train.
func (s *Store) Upsert(ctx context.Context, trainID, memberID int64, party Party) error {
	if err := party.Validate(); err != nil {
		return err
	}
	record := Record{
		TrainID:       trainID,
		MemberID:      memberID,
		CountMystic:   party[TeamMystic],
		CountInstinct: party[TeamInstinct],
		CountValor:    party[TeamValor],
		CountUnknown:  party[TeamUnknown],
		UpdatedAtSecs: s.clock().UTC().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

// Remove drops the member's attendance record. Removing an absent record is
// already satisfied.
func (s *Store) Remove(ctx context.Context, trainID, memberID int64) error {
	err := s.db.WithContext(ctx).
		Where("train_id = ? AND member_id = ?", trainID, memberID).
		Delete(&Record{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// List returns the train's attendance as member id -> party.
func (s *Store) List(ctx context.Context, trainID int64) (map[int64]Party, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where("train_id = ?", trainID).
		Find(&records).Error; err != nil {
		return nil, err
	}
	attendance := make(map[int64]Party, len(records))
	for _, record := range records {
		attendance[record.MemberID] = record.Party()
	}
	return attendance, nil
}

// Purge deletes every attendance record for the train.
func (s *Store) Purge(ctx context.Context, trainID int64) error {
	return s.db.WithContext(ctx).
		Where("train_id = ?", trainID).
		Delete(&Record{}).Error
}
