package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medlinkhq/medsupply-backend/internal/carts"
	"github.com/medlinkhq/medsupply-backend/internal/orders"
	"github.com/medlinkhq/medsupply-backend/pkg/db/models"
	"github.com/medlinkhq/medsupply-backend/pkg/enums"
	"github.com/medlinkhq/medsupply-backend/pkg/logger"
	"github.com/medlinkhq/medsupply-backend/pkg/outbox"
)

type fakePendingReader struct {
	orders []models.Order
}

func (f *fakePendingReader) FindUnpaidPendingBefore(_ context.Context, _ time.Time, _ int) ([]models.Order, error) {
	return f.orders, nil
}

type fakeCanceller struct {
	cancelled []orders.TransitionInput
}

func (f *fakeCanceller) Transition(_ context.Context, input orders.TransitionInput) error {
	f.cancelled = append(f.cancelled, input)
	return nil
}

func TestPaymentWindowJobCancelsStaleOrders(t *testing.T) {
	t.Parallel()

	stale := []models.Order{
		{ID: uuid.New(), OrderNumber: "ORD2508150001"},
		{ID: uuid.New(), OrderNumber: "ORD2508150002"},
	}
	reader := &fakePendingReader{orders: stale}
	canceller := &fakeCanceller{}

	job, err := NewPaymentWindowJob(PaymentWindowJobParams{
		Logger: testLogger(),
		Reader: reader,
		Orders: canceller,
		Window: 48 * time.Hour,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, canceller.cancelled, 2)
	for i, input := range canceller.cancelled {
		require.Equal(t, stale[i].ID, input.OrderID)
		require.Equal(t, enums.OrderStatusCancelled, input.Target)
		require.Equal(t, "payment window expired", input.Reason)
	}
}

func TestOutboxRetentionJobPrunesOldRows(t *testing.T) {
	t.Parallel()

	db := newJobTestDB(t)
	repo := outbox.NewRepository(db)

	published := time.Now().UTC().AddDate(0, 0, -45)
	old := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`), PublishedAt: &published, CreatedAt: published}
	fresh := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: []byte(`{}`)}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&fresh).Error)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         gormTxRunner{db},
		Repository: repo,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestCartCleanupJobRetiresStaleCarts(t *testing.T) {
	t.Parallel()

	db := newJobTestDB(t)
	repo := carts.NewRepository(db)

	staleCart := models.Cart{ID: uuid.New(), PharmacyID: uuid.New(), Status: enums.CartStatusActive}
	require.NoError(t, db.Create(&staleCart).Error)
	require.NoError(t, db.Model(&models.Cart{}).Where("id = ?", staleCart.ID).
		Update("updated_at", time.Now().UTC().AddDate(0, 0, -40)).Error)
	freshCart := models.Cart{ID: uuid.New(), PharmacyID: uuid.New(), Status: enums.CartStatusActive}
	require.NoError(t, db.Create(&freshCart).Error)

	job, err := NewCartCleanupJob(CartCleanupJobParams{
		Logger: testLogger(),
		Carts:  repo,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var stale, fresh models.Cart
	require.NoError(t, db.First(&stale, "id = ?", staleCart.ID).Error)
	require.NoError(t, db.First(&fresh, "id = ?", freshCart.ID).Error)
	require.Equal(t, enums.CartStatusAbandoned, stale.Status)
	require.Equal(t, enums.CartStatusActive, fresh.Status)
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cronjobs_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}, &models.Cart{}, &models.CartItem{}))
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}
