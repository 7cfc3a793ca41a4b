package tokenstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// refreshToken is a stored refresh token row.
type refreshToken struct {
	JTI       string `gorm:"primaryKey;column:jti"`
	Payload   string `gorm:"type:text"`
	ExpiresAt int64  `gorm:"index"` // unix nanos
}

func (refreshToken) TableName() string { return "refresh_tokens" }

// blacklistEntry is a revoked access token row.
type blacklistEntry struct {
	JTI       string `gorm:"primaryKey;column:jti"`
	ExpiresAt int64  `gorm:"index"` // unix nanos
}

func (blacklistEntry) TableName() string { return "blacklist_entries" }

// SQLiteStore is a Store for single-node deployments backed by an embedded
// database through gorm. Expired rows are invisible to reads and are pruned
// on each write.
type SQLiteStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore migrates the token tables on db.
func NewSQLiteStore(db *gorm.DB, opts ...func(*SQLiteStore)) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}

	for _, opt := range opts {
		opt(s)
	}

	if err := db.AutoMigrate(&refreshToken{}, &blacklistEntry{}); err != nil {
		return nil, unavailable("migrate", "", err)
	}
	return s, nil
}

// WithSQLiteClock overrides the time source used for expiry.
func WithSQLiteClock(now func() time.Time) func(*SQLiteStore) {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

func (s *SQLiteStore) SaveRefreshToken(ctx context.Context, jti, payload string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	now := s.now()
	row := refreshToken{JTI: jti, Payload: payload, ExpiresAt: now.Add(ttl).UnixNano()}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now.UnixNano()).Delete(&refreshToken{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return unavailable("save refresh token", jti, err)
	}
	return nil
}

func (s *SQLiteStore) GetRefreshToken(ctx context.Context, jti string) (string, bool, error) {
	var row refreshToken
	err := s.db.WithContext(ctx).
		Where("jti = ? AND expires_at > ?", jti, s.now().UnixNano()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get refresh token", jti, err)
	}
	return row.Payload, true, nil
}

func (s *SQLiteStore) TakeRefreshToken(ctx context.Context, jti string) (string, bool, error) {
	var (
		row   refreshToken
		found bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("jti = ? AND expires_at > ?", jti, s.now().UnixNano()).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// Only the caller whose delete removed the row owns the token.
		res := tx.Where("jti = ?", jti).Delete(&refreshToken{})
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return "", false, unavailable("take refresh token", jti, err)
	}
	if !found {
		return "", false, nil
	}
	return row.Payload, true, nil
}

func (s *SQLiteStore) DeleteRefreshToken(ctx context.Context, jti string) error {
	if err := s.db.WithContext(ctx).Where("jti = ?", jti).Delete(&refreshToken{}).Error; err != nil {
		return unavailable("delete refresh token", jti, err)
	}
	return nil
}

func (s *SQLiteStore) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}

	now := s.now()
	row := blacklistEntry{JTI: jti, ExpiresAt: now.Add(ttl).UnixNano()}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now.UnixNano()).Delete(&blacklistEntry{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return unavailable("add to blacklist", jti, err)
	}
	return nil
}

func (s *SQLiteStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&blacklistEntry{}).
		Where("jti = ? AND expires_at > ?", jti, s.now().UnixNano()).
		Count(&n).Error
	if err != nil {
		return false, unavailable("check blacklist", jti, err)
	}
	return n > 0, nil
}
