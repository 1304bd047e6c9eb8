package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"confessly/pkg/domain"
)

const maxTxnRetries = 5

// GormStore implements Store on Postgres. Update maps to a serializable
// database transaction retried on serialization failure, which gives the
// snapshot-read, compare-and-commit semantics the gates rely on.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{}, &ConfessionModel{}, &ReactionModel{}, &ReportModel{}, &UsedTokenModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Update runs fn in a serializable transaction, retrying the whole
// callback (re-reads included) when the commit loses a conflict.
func (s *GormStore) Update(ctx context.Context, fn func(Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormTx{db: tx})
		}, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err == nil || !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

// View runs fn in a read-only transaction.
func (s *GormStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

// GetConfession reads a confession outside a transaction.
func (s *GormStore) GetConfession(ctx context.Context, id string) (domain.Confession, bool, error) {
	return (&gormTx{db: s.db.WithContext(ctx)}).GetConfession(id)
}

// ListPushableUsers returns users with a registered push token.
func (s *GormStore) ListPushableUsers(ctx context.Context, limit int) ([]domain.User, error) {
	var models []UserModel
	q := s.db.WithContext(ctx).Where("push_token <> ''")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// Postgres reports lost serializable commits as SQLSTATE 40001 and
// deadlocks as 40P01; both are safe to retry from scratch.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "40P01")
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetUser(id string) (domain.User, bool, error) {
	var model UserModel
	if err := t.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (t *gormTx) SaveUser(user domain.User) error {
	model := userToModel(user)
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (t *gormTx) GetConfession(id string) (domain.Confession, bool, error) {
	var model ConfessionModel
	if err := t.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Confession{}, false, nil
		}
		return domain.Confession{}, false, err
	}
	return confessionFromModel(model), true, nil
}

func (t *gormTx) SaveConfession(c domain.Confession) error {
	model := confessionToModel(c)
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (t *gormTx) GetReaction(confessionID, userID string) (domain.Reaction, bool, error) {
	var model ReactionModel
	err := t.db.First(&model, "confession_id = ? AND user_id = ?", confessionID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Reaction{}, false, nil
		}
		return domain.Reaction{}, false, err
	}
	return reactionFromModel(model), true, nil
}

func (t *gormTx) SaveReaction(r domain.Reaction) error {
	model := reactionToModel(r)
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "confession_id"}, {Name: "user_id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (t *gormTx) DeleteReaction(confessionID, userID string) error {
	return t.db.Delete(&ReactionModel{}, "confession_id = ? AND user_id = ?", confessionID, userID).Error
}

func (t *gormTx) HasReport(confessionID, userID string) (bool, error) {
	var count int64
	err := t.db.Model(&ReportModel{}).
		Where("confession_id = ? AND reporter_id = ?", confessionID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *gormTx) SaveReport(r domain.Report) error {
	model := reportToModel(r)
	return t.db.Create(&model).Error
}

func (t *gormTx) HasUsedToken(token string) (bool, error) {
	var count int64
	err := t.db.Model(&UsedTokenModel{}).Where("token = ?", token).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *gormTx) SaveUsedToken(tok domain.UsedToken) error {
	model := usedTokenToModel(tok)
	return t.db.Create(&model).Error
}
