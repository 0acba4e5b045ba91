/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"
)

// Asset is a registered sound file. Name is the key the sound source resolves.
type Asset struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Seq       int64  `gorm:"index"` // registration order
	CreatedAt time.Time
}

// TableName returns the table name for GORM.
func (Asset) TableName() string {
	return "assets"
}

// Group is a named, ordered selection of assets.
type Group struct {
	ID        string        `gorm:"type:uuid;primaryKey"`
	Name      string        `gorm:"type:varchar(255);uniqueIndex;not null"`
	Seq       int64         `gorm:"index"`
	Members   []GroupMember `gorm:"foreignKey:GroupID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Group) TableName() string {
	return "groups"
}

// MemberNames returns the asset names of g in member order. Members must be
// preloaded with their Asset.
func (g Group) MemberNames() []string {
	names := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		names = append(names, m.Asset.Name)
	}
	return names
}

// GroupMember links an asset into a group at a position.
type GroupMember struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	GroupID  string `gorm:"type:uuid;index;not null"`
	AssetID  string `gorm:"type:uuid;index;not null"`
	Position int    `gorm:"not null"`
	Asset    Asset  `gorm:"foreignKey:AssetID"`
}

// TableName returns the table name for GORM.
func (GroupMember) TableName() string {
	return "group_members"
}

// Play outcomes recorded in PlayHistory.
const (
	OutcomeFinished = "finished"
	OutcomeFailed   = "failed"
	// OutcomeInterrupted marks a playback cut short by a stop.
	OutcomeInterrupted = "interrupted"
)

// PlayHistory records one triggered playback.
type PlayHistory struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Asset       string    `gorm:"type:varchar(255);index" json:"asset"`
	Group       string    `gorm:"column:group_name;type:varchar(255)" json:"group"`
	Probability float64   `json:"probability"` // probability at the moment of the hit
	Outcome     string    `gorm:"type:varchar(16)" json:"outcome"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time `gorm:"index" json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}

// TableName returns the table name for GORM.
func (PlayHistory) TableName() string {
	return "play_history"
}
