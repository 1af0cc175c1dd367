package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const (
	singletonID = 1
	cacheName   = "restaurant_settings"
)

// Provider returns the restaurant-wide pricing and loyalty settings.
type Provider interface {
	Get(ctx context.Context) (*models.RestaurantSettings, error)
}

// DBProvider reads the singleton settings row, filling unset values from config.
type DBProvider struct {
	db       *gorm.DB
	defaults config.RestaurantConfig
}

func NewDBProvider(db *gorm.DB, defaults config.RestaurantConfig) *DBProvider {
	return &DBProvider{db: db, defaults: defaults}
}

func (p *DBProvider) Get(ctx context.Context) (*models.RestaurantSettings, error) {
	var row models.RestaurantSettings
	err := p.db.WithContext(ctx).Where("id = ?", singletonID).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = models.RestaurantSettings{ID: singletonID, LoyaltyEnabled: true}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant settings")
	}
	p.applyDefaults(&row)
	return &row, nil
}

func (p *DBProvider) applyDefaults(row *models.RestaurantSettings) {
	if !row.PointsPerDollar.IsPositive() {
		if v, err := decimal.NewFromString(p.defaults.PointsPerDollar); err == nil {
			row.PointsPerDollar = v
		} else {
			row.PointsPerDollar = decimal.RequireFromString("0.5")
		}
	}
	if row.PointsForFree <= 0 {
		row.PointsForFree = p.defaults.PointsForFree
		if row.PointsForFree <= 0 {
			row.PointsForFree = 100
		}
	}
	if strings.TrimSpace(row.Currency) == "" {
		row.Currency = p.defaults.Currency
		if row.Currency == "" {
			row.Currency = "USD"
		}
	}
}

// Cache is the subset of the redis client used for settings caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(name string) string
}

// CachedProvider serves settings from redis, falling back to next on a miss.
type CachedProvider struct {
	next  Provider
	cache Cache
	ttl   time.Duration
	logg  *logger.Logger
}

func NewCachedProvider(next Provider, cache Cache, ttl time.Duration, logg *logger.Logger) *CachedProvider {
	return &CachedProvider{next: next, cache: cache, ttl: ttl, logg: logg}
}

func (p *CachedProvider) Get(ctx context.Context) (*models.RestaurantSettings, error) {
	if p.cache == nil || p.ttl <= 0 {
		return p.next.Get(ctx)
	}
	key := p.cache.CacheKey(cacheName)

	raw, err := p.cache.Get(ctx, key)
	if err == nil {
		var cached models.RestaurantSettings
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, goredis.Nil) && p.logg != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "settings cache read failed")
	}

	settings, err := p.next.Get(ctx)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(settings); err == nil {
		if setErr := p.cache.Set(ctx, key, string(payload), p.ttl); setErr != nil && p.logg != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", setErr.Error()), "settings cache write failed")
		}
	}
	return settings, nil
}

// Static serves fixed settings; handy for tools and tests.
type Static struct {
	Settings models.RestaurantSettings
}

func (s Static) Get(context.Context) (*models.RestaurantSettings, error) {
	out := s.Settings
	return &out, nil
}
