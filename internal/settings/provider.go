package settings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/livemerce/pointsledger/internal/models"
	"gorm.io/gorm"
)

// ErrInvalidValue rejects a config update outside the permitted ranges.
var ErrInvalidValue = errors.New("settings: invalid value")

// defaultSnapshotTTL bounds how stale the in-memory config copy may get.
const defaultSnapshotTTL = 30 * time.Second

// configSnapshot caches one loaded config row.
type configSnapshot struct {
	cfg      models.PointsConfig
	loadedAt time.Time
}

// Provider serves the singleton PointsConfig row. The row is created with
// defaults on first read; reads go through a TTL-bounded in-memory
// snapshot so the ledger hot path does not hit the database per mutation.
type Provider struct {
	db       *gorm.DB
	ttl      time.Duration
	snapshot atomic.Value // stores configSnapshot
}

// NewProvider constructs a config provider with the default snapshot TTL.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db, ttl: defaultSnapshotTTL}
}

// defaultPointsConfig returns the program defaults seeded on first read.
func defaultPointsConfig() models.PointsConfig {
	return models.PointsConfig{
		PointsEnabled:          true,
		PointEarningRate:       1,
		PointMinRedemption:     1000,
		PointMaxRedemptionPct:  10,
		PointExpirationEnabled: true,
		PointExpirationMonths:  12,
	}
}

// Get returns the current config, serving the cached snapshot while fresh.
func (p *Provider) Get(ctx context.Context) (*models.PointsConfig, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("settings: provider not initialized")
	}
	if snap, ok := p.snapshot.Load().(configSnapshot); ok && time.Since(snap.loadedAt) < p.ttl {
		cfg := snap.cfg
		return &cfg, nil
	}
	return p.reload(ctx)
}

// reload fetches the config row, creating it with defaults when absent,
// and refreshes the snapshot.
func (p *Provider) reload(ctx context.Context) (*models.PointsConfig, error) {
	var cfg models.PointsConfig
	errFind := p.db.WithContext(ctx).Order("id ASC").First(&cfg).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		cfg = defaultPointsConfig()
		if errCreate := p.db.WithContext(ctx).Create(&cfg).Error; errCreate != nil {
			return nil, errCreate
		}
	} else if errFind != nil {
		return nil, errFind
	}

	p.snapshot.Store(configSnapshot{cfg: cfg, loadedAt: time.Now()})
	out := cfg
	return &out, nil
}

// UpdateParams carries a partial config update; nil fields stay unchanged.
type UpdateParams struct {
	PointsEnabled          *bool
	PointEarningRate       *int
	PointMinRedemption     *int
	PointMaxRedemptionPct  *int
	PointExpirationEnabled *bool
	PointExpirationMonths  *int
}

// Update applies a partial merge to the config row and returns the result.
func (p *Provider) Update(ctx context.Context, params UpdateParams) (*models.PointsConfig, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("settings: provider not initialized")
	}

	updates := map[string]any{}
	if params.PointsEnabled != nil {
		updates["points_enabled"] = *params.PointsEnabled
	}
	if params.PointEarningRate != nil {
		if *params.PointEarningRate < 0 || *params.PointEarningRate > 100 {
			return nil, fmt.Errorf("%w: point_earning_rate must be 0-100", ErrInvalidValue)
		}
		updates["point_earning_rate"] = *params.PointEarningRate
	}
	if params.PointMinRedemption != nil {
		if *params.PointMinRedemption < 0 {
			return nil, fmt.Errorf("%w: point_min_redemption cannot be negative", ErrInvalidValue)
		}
		updates["point_min_redemption"] = *params.PointMinRedemption
	}
	if params.PointMaxRedemptionPct != nil {
		if *params.PointMaxRedemptionPct < 1 || *params.PointMaxRedemptionPct > 100 {
			return nil, fmt.Errorf("%w: point_max_redemption_pct must be 1-100", ErrInvalidValue)
		}
		updates["point_max_redemption_pct"] = *params.PointMaxRedemptionPct
	}
	if params.PointExpirationEnabled != nil {
		updates["point_expiration_enabled"] = *params.PointExpirationEnabled
	}
	if params.PointExpirationMonths != nil {
		if *params.PointExpirationMonths < 1 || *params.PointExpirationMonths > 120 {
			return nil, fmt.Errorf("%w: point_expiration_months must be 1-120", ErrInvalidValue)
		}
		updates["point_expiration_months"] = *params.PointExpirationMonths
	}
	if len(updates) == 0 {
		return p.reload(ctx)
	}

	current, errGet := p.reload(ctx)
	if errGet != nil {
		return nil, errGet
	}
	updates["updated_at"] = time.Now().UTC()
	if errUpdate := p.db.WithContext(ctx).
		Model(&models.PointsConfig{}).
		Where("id = ?", current.ID).
		Updates(updates).Error; errUpdate != nil {
		return nil, errUpdate
	}
	return p.reload(ctx)
}
