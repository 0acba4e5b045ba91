/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package library manages registered sound assets and the groups that
// select among them.
package library

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/soundtrigger/internal/cache"
	"github.com/friendsincode/soundtrigger/internal/events"
	"github.com/friendsincode/soundtrigger/internal/models"
	"github.com/friendsincode/soundtrigger/internal/telemetry"
)

var (
	ErrInvalidName   = errors.New("name must not be empty")
	ErrAssetExists   = errors.New("asset already registered")
	ErrAssetNotFound = errors.New("asset not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrGroupNotFound = errors.New("group not found")
)

// DefaultGroupName names the group created by Bootstrap.
const DefaultGroupName = "All"

// AudioExtensions lists the file types the playback engine can decode.
var AudioExtensions = []string{".mp3", ".wav"}

// IsAudioFile reports whether name carries a known audio extension.
func IsAudioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range AudioExtensions {
		if ext == known {
			return true
		}
	}
	return false
}

// NormalizeAssetName trims name and appends ".mp3" when it has no known
// audio extension.
func NormalizeAssetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	if !IsAudioFile(name) {
		name += ".mp3"
	}
	return name, nil
}

func normalizeGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// Service persists the asset registry and groups.
type Service struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a library service. cache and bus may be nil.
func NewService(db *gorm.DB, c *cache.Cache, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// changed drops cached groups and announces the change.
func (s *Service) changed(ctx context.Context, reason string) {
	if err := s.cache.InvalidateGroups(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("group cache invalidation failed")
	}
	if s.bus != nil {
		s.bus.Publish(events.EventLibraryChanged, events.Payload{"reason": reason})
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Asset{}).Count(&n).Error; err == nil {
		telemetry.AssetsRegistered.Set(float64(n))
	}
}

func nextSeq(tx *gorm.DB, model any) (int64, error) {
	var max int64
	if err := tx.Model(model).Select("COALESCE(MAX(seq), 0)").Row().Scan(&max); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// RegisterAsset adds a sound file to the registry.
func (s *Service) RegisterAsset(ctx context.Context, name string) (models.Asset, error) {
	name, err := NormalizeAssetName(name)
	if err != nil {
		return models.Asset{}, err
	}

	var asset models.Asset
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		asset, err = registerAsset(tx, name)
		return err
	})
	if err != nil {
		return models.Asset{}, err
	}

	s.logger.Info().Str("asset", name).Msg("asset registered")
	s.changed(ctx, "asset_registered")
	return asset, nil
}

func registerAsset(tx *gorm.DB, name string) (models.Asset, error) {
	var n int64
	if err := tx.Model(&models.Asset{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return models.Asset{}, err
	}
	if n > 0 {
		return models.Asset{}, fmt.Errorf("%w: %s", ErrAssetExists, name)
	}
	seq, err := nextSeq(tx, &models.Asset{})
	if err != nil {
		return models.Asset{}, err
	}
	asset := models.Asset{ID: uuid.NewString(), Name: name, Seq: seq}
	if err := tx.Create(&asset).Error; err != nil {
		return models.Asset{}, err
	}
	return asset, nil
}

// RegisterAssets registers every name not already present and returns the
// names that were added. Names without an audio extension are skipped.
func (s *Service) RegisterAssets(ctx context.Context, names []string) ([]string, error) {
	var added []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		added = added[:0]
		for _, raw := range names {
			name := strings.TrimSpace(raw)
			if name == "" || !IsAudioFile(name) {
				continue
			}
			if _, err := registerAsset(tx, name); err != nil {
				if errors.Is(err, ErrAssetExists) {
					continue
				}
				return err
			}
			added = append(added, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.logger.Info().Strs("assets", added).Msg("assets registered")
		s.changed(ctx, "assets_registered")
	}
	return added, nil
}

// RemoveAsset unregisters name and removes it from every group.
func (s *Service) RemoveAsset(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var asset models.Asset
		if err := tx.Where("name = ?", name).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrAssetNotFound, name)
			}
			return err
		}
		if err := tx.Where("asset_id = ?", asset.ID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&asset).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("asset", name).Msg("asset removed")
	s.changed(ctx, "asset_removed")
	return nil
}

// Assets lists registered assets in registration order.
func (s *Service) Assets(ctx context.Context) ([]models.Asset, error) {
	var assets []models.Asset
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// AssetNames lists registered asset names in registration order.
func (s *Service) AssetNames(ctx context.Context) ([]string, error) {
	assets, err := s.Assets(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}
	return names, nil
}

// CreateGroup adds an empty group.
func (s *Service) CreateGroup(ctx context.Context, name string) (models.Group, error) {
	name, err := normalizeGroupName(name)
	if err != nil {
		return models.Group{}, err
	}

	var group models.Group
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		group, err = createGroup(tx, name)
		return err
	})
	if err != nil {
		return models.Group{}, err
	}

	s.logger.Info().Str("group", name).Msg("group created")
	s.changed(ctx, "group_created")
	return group, nil
}

func createGroup(tx *gorm.DB, name string) (models.Group, error) {
	var n int64
	if err := tx.Model(&models.Group{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return models.Group{}, err
	}
	if n > 0 {
		return models.Group{}, fmt.Errorf("%w: %s", ErrGroupExists, name)
	}
	seq, err := nextSeq(tx, &models.Group{})
	if err != nil {
		return models.Group{}, err
	}
	group := models.Group{ID: uuid.NewString(), Name: name, Seq: seq}
	if err := tx.Omit(clause.Associations).Create(&group).Error; err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// DeleteGroup removes a group. Its assets stay registered.
func (s *Service) DeleteGroup(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("name = ?", name).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
			}
			return err
		}
		if err := tx.Where("group_id = ?", group.ID).Delete(&models.GroupMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("group", name).Msg("group deleted")
	s.changed(ctx, "group_deleted")
	return nil
}

// SetGroupMembers replaces the membership of a group. Every name must be a
// registered asset; duplicates collapse to their first position.
func (s *Service) SetGroupMembers(ctx context.Context, name string, assetNames []string) (models.Group, error) {
	name = strings.TrimSpace(name)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("name = ?", name).First(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
			}
			return err
		}
		return setMembers(tx, group.ID, assetNames)
	})
	if err != nil {
		return models.Group{}, err
	}

	s.changed(ctx, "group_updated")
	group, err := s.Group(ctx, name)
	if err != nil {
		return models.Group{}, err
	}
	s.logger.Info().Str("group", name).Int("assets", len(group.Members)).Msg("group membership updated")
	return group, nil
}

func setMembers(tx *gorm.DB, groupID string, assetNames []string) error {
	names := dedupe(assetNames)

	members := make([]models.GroupMember, 0, len(names))
	for i, assetName := range names {
		var asset models.Asset
		if err := tx.Where("name = ?", assetName).First(&asset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrAssetNotFound, assetName)
			}
			return err
		}
		members = append(members, models.GroupMember{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			AssetID:  asset.ID,
			Position: i,
		})
	}

	if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return tx.Omit(clause.Associations).Create(&members).Error
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func preloadMembers(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Members.Asset")
}

// Group loads a group with its members in order.
func (s *Service) Group(ctx context.Context, name string) (models.Group, error) {
	var group models.Group
	err := preloadMembers(s.db.WithContext(ctx)).Where("name = ?", strings.TrimSpace(name)).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Group{}, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
		}
		return models.Group{}, err
	}
	return group, nil
}

// Groups lists every group with members, in creation order.
func (s *Service) Groups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	if err := preloadMembers(s.db.WithContext(ctx)).Order("seq ASC").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupMembers resolves the asset names of a group, consulting the cache first.
func (s *Service) GroupMembers(ctx context.Context, name string) ([]string, error) {
	if cached, ok := s.cache.GetGroup(ctx, name); ok {
		return cached.Members, nil
	}
	group, err := s.Group(ctx, name)
	if err != nil {
		return nil, err
	}
	members := group.MemberNames()
	if err := s.cache.SetGroup(ctx, &cache.CachedGroup{Name: group.Name, Members: members}); err != nil {
		s.logger.Debug().Err(err).Msg("group cache write failed")
	}
	return members, nil
}

// Bootstrap seeds an empty library from the files found in a sound source:
// every audio file is registered and a DefaultGroupName group holds them all.
// It reports whether anything was created.
func (s *Service) Bootstrap(ctx context.Context, available []string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Asset{}).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	var names []string
	for _, name := range dedupe(available) {
		if IsAudioFile(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return false, nil
	}
	sort.Strings(names)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			if _, err := registerAsset(tx, name); err != nil {
				return err
			}
		}
		group, err := createGroup(tx, DefaultGroupName)
		if err != nil {
			return err
		}
		return setMembers(tx, group.ID, names)
	})
	if err != nil {
		return false, fmt.Errorf("bootstrap library: %w", err)
	}

	s.logger.Info().Int("assets", len(names)).Str("group", DefaultGroupName).Msg("library bootstrapped")
	s.changed(ctx, "bootstrap")
	return true, nil
}
