/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"gorm.io/gorm"

	"github.com/friendsincode/soundtrigger/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Asset{},
		&models.Group{},
		&models.GroupMember{},
		&models.ScheduleSettings{},
		&models.PlayHistory{},
	); err != nil {
		return err
	}

	if _, err := models.GetScheduleSettings(database); err != nil {
		return err
	}
	return nil
}
