package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"gorm.io/gorm"
)

const startKey = "metrics:start"

// InstrumentMetrics times every gorm operation into the db operation histogram
func InstrumentMetrics(db *gorm.DB) error {
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("metrics:before_insert", markStart),
		cb.Create().After("gorm:create").Register("metrics:after_insert", observe("insert")),
		cb.Query().Before("gorm:query").Register("metrics:before_select", markStart),
		cb.Query().After("gorm:query").Register("metrics:after_select", observe("select")),
		cb.Update().Before("gorm:update").Register("metrics:before_update", markStart),
		cb.Update().After("gorm:update").Register("metrics:after_update", observe("update")),
		cb.Delete().Before("gorm:delete").Register("metrics:before_delete", markStart),
		cb.Delete().After("gorm:delete").Register("metrics:after_delete", observe("delete")),
		cb.Row().Before("gorm:row").Register("metrics:before_row", markStart),
		cb.Row().After("gorm:row").Register("metrics:after_row", observe("row")),
		cb.Raw().Before("gorm:raw").Register("metrics:before_raw", markStart),
		cb.Raw().After("gorm:raw").Register("metrics:after_raw", observe("raw")),
	)
	if err != nil {
		return fmt.Errorf("failed to register metrics callbacks: %w", err)
	}
	return nil
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startKey, time.Now())
}

func observe(op string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startKey)
		if !ok {
			return
		}
		if start, ok := v.(time.Time); ok {
			prometheus.TrackDBOperation(op)(start)
		}
	}
}
