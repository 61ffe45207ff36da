package database

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertRollup inserts or replaces the rollup row for its
// (monitor, granularity, period start) key
func UpsertRollup(db *gorm.DB, rollup *MonitorRollup) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "monitor_id"},
			{Name: "granularity"},
			{Name: "period_start"},
		},
		UpdateAll: true,
	}).Create(rollup).Error
}

// CountRollupsInRange counts rollup rows for a monitor at a granularity
// with period start in [from, to). The aggregation job uses this to gate
// coarser tiers on the existence of the finer tier.
func CountRollupsInRange(db *gorm.DB, monitorID uint, granularity Granularity, from, to time.Time) (int64, error) {
	var count int64
	err := db.Model(&MonitorRollup{}).
		Where("monitor_id = ? AND granularity = ? AND period_start >= ? AND period_start < ?",
			monitorID, granularity, from, to).
		Count(&count).Error
	return count, err
}

// GetRollupsInRange returns rollups for a monitor at a granularity with
// period start in [from, to), oldest first
func GetRollupsInRange(db *gorm.DB, monitorID uint, granularity Granularity, from, to time.Time) ([]MonitorRollup, error) {
	var rollups []MonitorRollup
	err := db.Where("monitor_id = ? AND granularity = ? AND period_start >= ? AND period_start < ?",
		monitorID, granularity, from, to).
		Order("period_start asc").
		Find(&rollups).Error
	if err != nil {
		return nil, err
	}
	return rollups, nil
}

// DeleteRollupsOlderThan removes rollups of one granularity with a period
// start before the cutoff. Returns the number of rows deleted.
func DeleteRollupsOlderThan(db *gorm.DB, granularity Granularity, cutoff time.Time) (int64, error) {
	result := db.Where("granularity = ? AND period_start < ?", granularity, cutoff).
		Delete(&MonitorRollup{})
	return result.RowsAffected, result.Error
}
