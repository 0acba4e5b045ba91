/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/soundtrigger/internal/models"
)

// ErrInvalidDocument is returned when an import document is malformed.
var ErrInvalidDocument = errors.New("invalid library document")

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the portable form of the library: every registered file and
// every group with its members.
type Document struct {
	Files  []string        `json:"files" yaml:"files"`
	Groups []GroupDocument `json:"groups" yaml:"groups"`
}

// GroupDocument is one group in a Document.
type GroupDocument struct {
	Name  string   `json:"name" yaml:"name"`
	Files []string `json:"files" yaml:"files"`
}

// rawDocument distinguishes a missing key from an empty list.
type rawDocument struct {
	Files  *[]string        `json:"files" yaml:"files"`
	Groups *[]GroupDocument `json:"groups" yaml:"groups"`
}

// Encode writes doc in the given format.
func Encode(w io.Writer, doc Document, format Format) error {
	doc = doc.withEmptyLists()
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}

// Decode reads a document. Both the files and groups keys must be present.
func Decode(r io.Reader, format Format) (Document, error) {
	var raw rawDocument
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&raw)
	default:
		err = json.NewDecoder(r).Decode(&raw)
	}
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw.Files == nil || raw.Groups == nil {
		return Document{}, fmt.Errorf("%w: both files and groups are required", ErrInvalidDocument)
	}
	return Document{Files: *raw.Files, Groups: *raw.Groups}, nil
}

func (d Document) withEmptyLists() Document {
	if d.Files == nil {
		d.Files = []string{}
	}
	if d.Groups == nil {
		d.Groups = []GroupDocument{}
	}
	for i := range d.Groups {
		if d.Groups[i].Files == nil {
			d.Groups[i].Files = []string{}
		}
	}
	return d
}

// Normalize validates d and returns it with names normalized and duplicate
// files collapsed. Group names must be unique and group members must be
// listed in Files.
func (d Document) Normalize() (Document, error) {
	out := Document{Files: make([]string, 0, len(d.Files)), Groups: make([]GroupDocument, 0, len(d.Groups))}

	files := make(map[string]bool, len(d.Files))
	for _, f := range d.Files {
		name, err := NormalizeAssetName(f)
		if err != nil {
			return Document{}, fmt.Errorf("%w: empty file name", ErrInvalidDocument)
		}
		if files[name] {
			continue
		}
		files[name] = true
		out.Files = append(out.Files, name)
	}

	groups := make(map[string]bool, len(d.Groups))
	for _, g := range d.Groups {
		name, err := normalizeGroupName(g.Name)
		if err != nil {
			return Document{}, fmt.Errorf("%w: empty group name", ErrInvalidDocument)
		}
		if groups[name] {
			return Document{}, fmt.Errorf("%w: duplicate group %q", ErrInvalidDocument, name)
		}
		groups[name] = true

		members := make([]string, 0, len(g.Files))
		for _, f := range g.Files {
			member, err := NormalizeAssetName(f)
			if err != nil {
				return Document{}, fmt.Errorf("%w: empty file name in group %q", ErrInvalidDocument, name)
			}
			if !files[member] {
				return Document{}, fmt.Errorf("%w: group %q references unknown file %q", ErrInvalidDocument, name, member)
			}
			members = append(members, member)
		}
		out.Groups = append(out.Groups, GroupDocument{Name: name, Files: dedupe(members)})
	}
	return out, nil
}

// Export snapshots the library as a Document.
func (s *Service) Export(ctx context.Context) (Document, error) {
	files, err := s.AssetNames(ctx)
	if err != nil {
		return Document{}, err
	}
	groups, err := s.Groups(ctx)
	if err != nil {
		return Document{}, err
	}

	doc := Document{Files: files, Groups: make([]GroupDocument, 0, len(groups))}
	for _, g := range groups {
		doc.Groups = append(doc.Groups, GroupDocument{Name: g.Name, Files: g.MemberNames()})
	}
	return doc.withEmptyLists(), nil
}

// Import replaces the whole library with doc in one transaction.
func (s *Service) Import(ctx context.Context, doc Document) error {
	doc, err := doc.Normalize()
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.GroupMember{}, &models.Group{}, &models.Asset{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}

		ids := make(map[string]string, len(doc.Files))
		for i, name := range doc.Files {
			asset := models.Asset{ID: uuid.NewString(), Name: name, Seq: int64(i + 1)}
			if err := tx.Create(&asset).Error; err != nil {
				return err
			}
			ids[name] = asset.ID
		}

		for i, g := range doc.Groups {
			group := models.Group{ID: uuid.NewString(), Name: g.Name, Seq: int64(i + 1)}
			if err := tx.Omit(clause.Associations).Create(&group).Error; err != nil {
				return err
			}
			if len(g.Files) == 0 {
				continue
			}
			members := make([]models.GroupMember, len(g.Files))
			for pos, f := range g.Files {
				members[pos] = models.GroupMember{ID: uuid.NewString(), GroupID: group.ID, AssetID: ids[f], Position: pos}
			}
			if err := tx.Omit(clause.Associations).Create(&members).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import library: %w", err)
	}

	s.logger.Info().Int("assets", len(doc.Files)).Int("groups", len(doc.Groups)).Msg("library imported")
	s.changed(ctx, "import")
	return nil
}
