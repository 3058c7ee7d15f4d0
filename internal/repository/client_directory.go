package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	"VolGuard/pkg/postgres"
)

type clientRow struct {
	ClientID            string       `gorm:"column:client_id;primaryKey;size:64"`
	Name                string       `gorm:"column:name"`
	ContactAddress      string       `gorm:"column:contact_address"`
	TargetVolatility    *float64     `gorm:"column:target_volatility"`
	VolatilityTolerance *float64     `gorm:"column:volatility_tolerance"`
	CurrentVolatility   *float64     `gorm:"column:current_volatility"`
	LastUpdatedAt       *time.Time   `gorm:"column:last_updated_at"`
	LastNotifiedAt      *time.Time   `gorm:"column:last_notified_at"`
	Holdings            []holdingRow `gorm:"foreignKey:ClientID;references:ClientID;constraint:OnDelete:CASCADE"`
}

func (clientRow) TableName() string { return "clients" }

type holdingRow struct {
	ClientID   string  `gorm:"column:client_id;primaryKey;size:64"`
	Instrument string  `gorm:"column:instrument;primaryKey;size:32;index:idx_holdings_instrument"`
	Quantity   float64 `gorm:"column:quantity"`
}

func (holdingRow) TableName() string { return "holdings" }

// ClientModels lists the gorm models the directory needs migrated.
func ClientModels() []interface{} {
	return []interface{}{&clientRow{}, &holdingRow{}}
}

func (r clientRow) toModel() models.ClientProfile {
	p := models.ClientProfile{
		ClientID:            r.ClientID,
		Name:                r.Name,
		ContactAddress:      r.ContactAddress,
		TargetVolatility:    r.TargetVolatility,
		VolatilityTolerance: r.VolatilityTolerance,
		CurrentVolatility:   r.CurrentVolatility,
		LastUpdatedAt:       r.LastUpdatedAt,
		LastNotifiedAt:      r.LastNotifiedAt,
		Holdings:            make([]models.Holding, 0, len(r.Holdings)),
	}
	for _, h := range r.Holdings {
		p.Holdings = append(p.Holdings, models.Holding{Instrument: h.Instrument, Quantity: h.Quantity})
	}
	return p
}

// PostgresClientDirectory serves client profiles from the clients and
// holdings tables. Holdings double as the instrument to client index.
type PostgresClientDirectory struct {
	db *gorm.DB
}

func NewPostgresClientDirectory(pg *postgres.Client) *PostgresClientDirectory {
	return &PostgresClientDirectory{db: pg.DB()}
}

// List pages by client_id. The token is the last client_id of the previous page.
func (d *PostgresClientDirectory) List(ctx context.Context, pageToken string, pageSize int) ([]models.ClientProfile, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var rows []clientRow
	q := d.db.WithContext(ctx).Preload("Holdings").Order("client_id").Limit(pageSize + 1)
	if pageToken != "" {
		q = q.Where("client_id > ?", pageToken)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, "", fmt.Errorf("list clients: %w", err)
	}

	next := ""
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		next = rows[pageSize-1].ClientID
	}
	out := make([]models.ClientProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, next, nil
}

func (d *PostgresClientDirectory) ListHolding(ctx context.Context, instruments []string) ([]models.ClientProfile, error) {
	if len(instruments) == 0 {
		return nil, nil
	}
	db := d.db.WithContext(ctx)
	holders := db.Model(&holdingRow{}).Select("client_id").Where("instrument IN ?", instruments)

	var rows []clientRow
	if err := db.Preload("Holdings").Where("client_id IN (?)", holders).Order("client_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	out := make([]models.ClientProfile, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Get returns nil when the client does not exist.
func (d *PostgresClientDirectory) Get(ctx context.Context, clientID string) (*models.ClientProfile, error) {
	var row clientRow
	err := d.db.WithContext(ctx).Preload("Holdings").Where("client_id = ?", clientID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", clientID, err)
	}
	p := row.toModel()
	return &p, nil
}

func (d *PostgresClientDirectory) UpdateCurrentVolatility(ctx context.Context, clientID string, vol float64, at time.Time) error {
	res := d.db.WithContext(ctx).Model(&clientRow{}).
		Where("client_id = ?", clientID).
		Updates(map[string]interface{}{"current_volatility": vol, "last_updated_at": at.UTC()})
	if res.Error != nil {
		return fmt.Errorf("update client %s: %w", clientID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update client %s: %w", clientID, models.ErrNotFound)
	}
	return nil
}

// Upsert writes the profile fields and replaces its holdings. Computed
// fields (current volatility, notification mark) are left untouched.
func (d *PostgresClientDirectory) Upsert(ctx context.Context, p models.ClientProfile) error {
	row := clientRow{
		ClientID:            p.ClientID,
		Name:                p.Name,
		ContactAddress:      p.ContactAddress,
		TargetVolatility:    p.TargetVolatility,
		VolatilityTolerance: p.VolatilityTolerance,
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "contact_address", "target_volatility", "volatility_tolerance"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert client %s: %w", p.ClientID, err)
		}
		if err := tx.Where("client_id = ?", p.ClientID).Delete(&holdingRow{}).Error; err != nil {
			return fmt.Errorf("clear holdings %s: %w", p.ClientID, err)
		}
		if len(p.Holdings) == 0 {
			return nil
		}
		hs := make([]holdingRow, 0, len(p.Holdings))
		for _, h := range p.Holdings {
			hs = append(hs, holdingRow{ClientID: p.ClientID, Instrument: h.Instrument, Quantity: h.Quantity})
		}
		if err := tx.Create(&hs).Error; err != nil {
			return fmt.Errorf("insert holdings %s: %w", p.ClientID, err)
		}
		return nil
	})
}

var (
	_ domrepo.ClientDirectory = (*PostgresClientDirectory)(nil)
	_ domrepo.ClientWriter    = (*PostgresClientDirectory)(nil)
)

// PostgresCooldownStore marks notifications on clients.last_notified_at with
// one conditional UPDATE, so concurrent callers cannot both win.
type PostgresCooldownStore struct {
	db *gorm.DB
}

func NewPostgresCooldownStore(pg *postgres.Client) *PostgresCooldownStore {
	return &PostgresCooldownStore{db: pg.DB()}
}

func (s *PostgresCooldownStore) CompareAndMark(ctx context.Context, clientID string, now time.Time, cooldown time.Duration) (bool, error) {
	threshold := now.Add(-cooldown).UTC()
	res := s.db.WithContext(ctx).Model(&clientRow{}).
		Where("client_id = ? AND (last_notified_at IS NULL OR last_notified_at < ?)", clientID, threshold).
		Update("last_notified_at", now.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("mark notified %s: %w", clientID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

var _ domrepo.CooldownStore = (*PostgresCooldownStore)(nil)
