/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduleSettings stores the user-editable schedule parameters and the
// selected group. Uses singleton pattern with a fixed ID=1 row.
type ScheduleSettings struct {
	ID                    int     `gorm:"primaryKey"`
	IntervalSeconds       float64 `gorm:"default:10"`
	InitialProbability    float64 `gorm:"default:10"`
	Mode                  string  `gorm:"type:varchar(16);default:'linear'"`
	LinearStep            float64 `gorm:"default:10"`
	ExponentialMultiplier float64 `gorm:"default:1.5"`
	AntiRepeat            bool    `gorm:"default:true"`
	Volume                float64 `gorm:"default:0.8"`
	GroupName             string  `gorm:"type:varchar(255)"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName returns the table name for GORM.
func (ScheduleSettings) TableName() string {
	return "schedule_settings"
}

// DefaultScheduleSettings returns the values a fresh install starts with.
func DefaultScheduleSettings() ScheduleSettings {
	return ScheduleSettings{
		ID:                    1,
		IntervalSeconds:       10,
		InitialProbability:    10,
		Mode:                  "linear",
		LinearStep:            10,
		ExponentialMultiplier: 1.5,
		AntiRepeat:            true,
		Volume:                0.8,
	}
}

// GetScheduleSettings retrieves the singleton settings row, creating it with
// defaults if it doesn't exist.
func GetScheduleSettings(db *gorm.DB) (*ScheduleSettings, error) {
	settings := DefaultScheduleSettings()
	result := db.Where(ScheduleSettings{ID: 1}).Attrs(settings).FirstOrCreate(&settings)
	if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}
