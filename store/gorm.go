package store

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"personal-ledger/domain"
	"personal-ledger/events"
	"personal-ledger/shared"
)

// GormStore persists aggregates in a relational database through GORM. Each
// Commit runs in one database transaction.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates the schema.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&AccountModel{}, &MovementModel{}, &TransferModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) FindAccount(ctx context.Context, id string) (*domain.Account, error) {
	var m AccountModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "account", id)
	}
	return m.toDomain(), nil
}

func (s *GormStore) FindMovement(ctx context.Context, id string) (*domain.Movement, error) {
	var m MovementModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "movement", id)
	}
	return m.toDomain(), nil
}

func (s *GormStore) FindTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	var m TransferModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "transfer", id)
	}
	return m.toDomain(), nil
}

func (s *GormStore) ListAccounts(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Account], error) {
	req = req.Normalize()
	q := s.db.WithContext(ctx).Model(&AccountModel{}).Where("owner_id = ?", ownerID)
	if req.Search != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+req.Search+"%")
	}
	column := "LOWER(name)"
	if req.SortBy == "balance" {
		column = "balance"
	}
	var rows []AccountModel
	total, err := fetchPage(q, req, column, &rows)
	if err != nil {
		return shared.Page[*domain.Account]{}, fmt.Errorf("list accounts for %s: %w", ownerID, err)
	}
	return toPage(rows, req, total, AccountModel.toDomain), nil
}

func (s *GormStore) ListMovements(ctx context.Context, kind events.MovementKind, ownerID string, req shared.PageRequest) (shared.Page[*domain.Movement], error) {
	req = req.Normalize()
	q := s.db.WithContext(ctx).Model(&MovementModel{}).Where("owner_id = ? AND kind = ?", ownerID, string(kind))
	if req.Search != "" {
		q = q.Where("LOWER(description) LIKE ?", "%"+req.Search+"%")
	}
	var rows []MovementModel
	total, err := fetchPage(q, req, dateOrAmount(req.SortBy), &rows)
	if err != nil {
		return shared.Page[*domain.Movement]{}, fmt.Errorf("list %s movements for %s: %w", kind, ownerID, err)
	}
	return toPage(rows, req, total, MovementModel.toDomain), nil
}

func (s *GormStore) ListTransfers(ctx context.Context, ownerID string, req shared.PageRequest) (shared.Page[*domain.Transfer], error) {
	req = req.Normalize()
	q := s.db.WithContext(ctx).Model(&TransferModel{}).Where("owner_id = ?", ownerID)
	if req.Search != "" {
		q = q.Where("LOWER(description) LIKE ?", "%"+req.Search+"%")
	}
	var rows []TransferModel
	total, err := fetchPage(q, req, dateOrAmount(req.SortBy), &rows)
	if err != nil {
		return shared.Page[*domain.Transfer]{}, fmt.Errorf("list transfers for %s: %w", ownerID, err)
	}
	return toPage(rows, req, total, TransferModel.toDomain), nil
}

// Commit writes all changes in a single transaction. Updates and deletes are
// guarded by the version the entity was loaded at.
func (s *GormStore) Commit(ctx context.Context, changes []Change) (int, error) {
	if len(changes) == 0 {
		return 0, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			if err := commitOne(tx, c); err != nil {
				return fmt.Errorf("commit %s %s %s: %w", c.Op, c.Entity.EntityType(), c.Entity.EntityID(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, c := range changes {
		if c.Op != OpDelete {
			c.Entity.SetVersion(c.Entity.CurrentVersion() + 1)
		}
	}
	log.WithField("changes", len(changes)).Debug("committed change set")
	return len(changes), nil
}

func commitOne(tx *gorm.DB, c Change) error {
	var (
		row   any
		model any
	)
	switch e := c.Entity.(type) {
	case *domain.Account:
		m := accountModel(e)
		m.Version++
		row, model = &m, &AccountModel{}
	case *domain.Movement:
		m := movementModel(e)
		m.Version++
		row, model = &m, &MovementModel{}
	case *domain.Transfer:
		m := transferModel(e)
		m.Version++
		row, model = &m, &TransferModel{}
	default:
		return fmt.Errorf("unsupported entity %T", c.Entity)
	}

	id, version := c.Entity.EntityID(), c.Entity.CurrentVersion()
	switch c.Op {
	case OpAdd:
		var n int64
		if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		return tx.Create(row).Error
	case OpUpdate:
		res := tx.Model(model).Where("id = ? AND version = ?", id, version).Select("*").Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return versionConflict(tx, model, id, version)
		}
	case OpDelete:
		res := tx.Where("id = ? AND version = ?", id, version).Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return versionConflict(tx, model, id, version)
		}
	default:
		return fmt.Errorf("unknown op %d", c.Op)
	}
	return nil
}

func versionConflict(tx *gorm.DB, model any, id string, version int) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return fmt.Errorf("%w: expected version %d", ErrOptimisticLock, version)
}

func fetchPage[M any](q *gorm.DB, req shared.PageRequest, column string, rows *[]M) (int, error) {
	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, err
	}
	order := column
	if req.Desc {
		order += " DESC"
	}
	err := q.Order(order).Order("id").Offset(req.Offset()).Limit(req.PageSize).Find(rows).Error
	return int(total), err
}

func toPage[M any, T any](rows []M, req shared.PageRequest, total int, convert func(M) T) shared.Page[T] {
	page := shared.Page[T]{Items: make([]T, 0, len(rows)), Page: req.Page, PageSize: req.PageSize, Total: total}
	for _, r := range rows {
		page.Items = append(page.Items, convert(r))
	}
	return page
}

func dateOrAmount(sortBy string) string {
	if sortBy == "amount" {
		return "amount"
	}
	return "date"
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}
