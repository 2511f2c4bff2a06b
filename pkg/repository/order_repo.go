package repository

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/cicekpazari/orderservice/pkg/model"
)

// OrderRepo is the order snapshot accessor consumed by the automation
// engine. All status-changing writes go through UpdateIfStatus so a
// concurrent run or admin action loses cleanly instead of double-applying.
type OrderRepo interface {
	InsertOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// FindStuckPending selects pending/pending_payment orders created in
	// (createdAfter, createdBefore] that carry a checkout token but are
	// not paid yet.
	FindStuckPending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*model.Order, error)

	// FindPaidLegacy selects pending/pending_payment orders that already
	// reached paid payment status, created since the given instant.
	FindPaidLegacy(ctx context.Context, createdAfter time.Time, limit int) ([]*model.Order, error)

	// FindDueByDateKey selects paid orders on the automated track whose
	// stored delivery date exactly matches the canonical date key.
	FindDueByDateKey(ctx context.Context, dateKey string, limit int) ([]*model.Order, error)

	// FindRecentActive is the fallback for rows with non-canonical
	// delivery dates: paid orders on the automated track created since
	// the given instant, to be date-filtered in memory.
	FindRecentActive(ctx context.Context, createdAfter time.Time, limit int) ([]*model.Order, error)

	// UpdateIfStatus applies patch only if the stored status still equals
	// expected. Returns false when the guard lost the race.
	UpdateIfStatus(ctx context.Context, id string, expected model.Status, patch map[string]interface{}) (bool, error)
}

var pendingStatuses = []model.Status{model.StatusPending, model.StatusPendingPayment}

var automatedStatuses = []model.Status{model.StatusConfirmed, model.StatusProcessing, model.StatusShipped}

type mysqlRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) OrderRepo {
	return &mysqlRepo{db: db}
}

func (r *mysqlRepo) InsertOrder(ctx context.Context, order *model.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrapf(err, "insert order %s", order.OrderNumber)
	}
	return nil
}

func (r *mysqlRepo) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}
	return &order, nil
}

func (r *mysqlRepo) FindStuckPending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", pendingStatuses).
		Where("payment_token <> ''").
		Where("payment_status <> ?", model.PaymentPaid).
		Where("created_at > ? AND created_at <= ?", createdAfter, createdBefore).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "find stuck pending orders")
	}
	return orders, nil
}

func (r *mysqlRepo) FindPaidLegacy(ctx context.Context, createdAfter time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", pendingStatuses).
		Where("payment_status = ?", model.PaymentPaid).
		Where("created_at > ?", createdAfter).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "find paid legacy orders")
	}
	return orders, nil
}

func (r *mysqlRepo) FindDueByDateKey(ctx context.Context, dateKey string, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", automatedStatuses).
		Where("payment_status = ?", model.PaymentPaid).
		Where("delivery_date = ?", dateKey).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find orders due on %s", dateKey)
	}
	return orders, nil
}

func (r *mysqlRepo) FindRecentActive(ctx context.Context, createdAfter time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("status IN ?", automatedStatuses).
		Where("payment_status = ?", model.PaymentPaid).
		Where("created_at > ?", createdAfter).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "find recent active orders")
	}
	return orders, nil
}

func (r *mysqlRepo) UpdateIfStatus(ctx context.Context, id string, expected model.Status, patch map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(patch)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "guarded update for order %s", id)
	}
	return res.RowsAffected > 0, nil
}
