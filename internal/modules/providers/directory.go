package providers

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Directory answers "does this provider exist and take bookings".
type Directory interface {
	IsActive(ctx context.Context, providerID string) (bool, error)
	Profile(ctx context.Context, providerID string) (Profile, error)
}

type DBDirectory struct {
	db    *gorm.DB
	cache *redis.Client // optional
	ttl   time.Duration
}

func NewDirectory(db *gorm.DB, cache *redis.Client) *DBDirectory {
	return &DBDirectory{db: db, cache: cache, ttl: 5 * time.Minute}
}

func (d *DBDirectory) IsActive(ctx context.Context, providerID string) (bool, error) {
	if d.cache != nil {
		v, err := d.cache.Get(ctx, activeKey(providerID)).Result()
		if err == nil {
			return v == "1", nil
		}
	}

	var p Profile
	err := d.db.WithContext(ctx).Select("id", "active").First(&p, "id = ?", providerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if d.cache != nil {
		v := "0"
		if p.Active {
			v = "1"
		}
		// cache failures are not worth failing a booking over
		_ = d.cache.Set(ctx, activeKey(providerID), v, d.ttl).Err()
	}
	return p.Active, nil
}

func (d *DBDirectory) Profile(ctx context.Context, providerID string) (Profile, error) {
	var p Profile
	err := d.db.WithContext(ctx).First(&p, "id = ?", providerID).Error
	return p, err
}

func activeKey(providerID string) string { return "provider:active:" + providerID }
