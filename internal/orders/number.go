package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/medlinkhq/medsupply-backend/pkg/errors"
)

const orderNumberPrefix = "ORD"

// NextOrderNumber produces the next ORD<YYMMDD><NNNN> number for the day.
// The per-day counter row is advanced with an atomic upsert, so two orders
// created in the same instant cannot read the same sequence value.
func NextOrderNumber(ctx context.Context, tx *gorm.DB, now time.Time) (string, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "transaction required for order numbering")
	}

	dayKey := now.Format("060102")
	var counter int
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO order_sequences (day_key, counter) VALUES (?, 1)
		ON CONFLICT (day_key) DO UPDATE SET counter = order_sequences.counter + 1
		RETURNING counter
	`, dayKey).Scan(&counter).Error
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order sequence")
	}

	return fmt.Sprintf("%s%s%04d", orderNumberPrefix, dayKey, counter), nil
}
