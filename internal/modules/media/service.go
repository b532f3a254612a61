// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package media

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/tomtom215/everly/internal/config"
	"github.com/tomtom215/everly/internal/eventbus"
	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/models"
	"github.com/tomtom215/everly/internal/store"
	"github.com/tomtom215/everly/internal/upload"
)

// URLPath is where media files are served below the base URL.
const URLPath = "/static/uploads/media"

// ErrNotOwner is returned when a user acts on another user's file.
var ErrNotOwner = errors.New("file belongs to another user")

// Service stores uploaded media and its metadata.
type Service struct {
	db      *store.Store
	bus     *eventbus.Bus
	cfg     config.MediaConfig
	baseURL string
}

// AllowedTypes returns every accepted MIME type.
func (s *Service) AllowedTypes() []string {
	out := make([]string, 0, len(s.cfg.AllowedImageTypes)+len(s.cfg.AllowedVideoTypes)+len(s.cfg.AllowedAudioTypes))
	out = append(out, s.cfg.AllowedImageTypes...)
	out = append(out, s.cfg.AllowedVideoTypes...)
	return append(out, s.cfg.AllowedAudioTypes...)
}

// Upload checks f, writes it under a generated name and records its
// metadata for owner.
func (s *Service) Upload(ctx context.Context, owner string, f *upload.File) (*models.MediaFile, error) {
	if err := f.Check(s.AllowedTypes()); err != nil {
		return nil, err
	}

	name := upload.StoredName(f.Extension("bin"))
	if _, err := upload.Save(s.cfg.UploadPath, name, f.Data); err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(f.Data)
	doc := &models.MediaFile{
		Filename:         name,
		OriginalFilename: f.OriginalName,
		ContentType:      f.DeclaredType,
		FileType:         models.FileTypeOf(f.DeclaredType),
		Size:             f.Size(),
		Checksum:         hex.EncodeToString(sum[:]),
		URL:              upload.URL(s.baseURL, URLPath, name),
		UploadedBy:       owner,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.db.Put(ctx, models.CollectionMedia, name, doc); err != nil {
		if rmErr := upload.Remove(s.cfg.UploadPath, name); rmErr != nil {
			logging.Ctx(ctx).Warn().Err(rmErr).Str("file", name).Msg("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("save media metadata: %w", err)
	}

	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.MediaUploaded, ModuleName, map[string]any{
		"filename":     doc.Filename,
		"url":          doc.URL,
		"user_id":      owner,
		"file_type":    doc.FileType,
		"content_type": doc.ContentType,
		"size":         doc.Size,
	}))
	return doc, nil
}

// Get returns the metadata of one of owner's files.
func (s *Service) Get(ctx context.Context, owner, filename string) (*models.MediaFile, error) {
	if err := upload.ValidateName(filename); err != nil {
		return nil, err
	}
	var doc models.MediaFile
	if err := s.db.Get(ctx, models.CollectionMedia, filename, &doc); err != nil {
		return nil, err
	}
	if doc.UploadedBy != owner {
		return nil, ErrNotOwner
	}
	return &doc, nil
}

// List returns owner's files, newest first.
func (s *Service) List(ctx context.Context, owner string) ([]models.MediaFile, error) {
	files, err := store.List(ctx, s.db, models.CollectionMedia, func(f *models.MediaFile) bool {
		return f.UploadedBy == owner
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	if files == nil {
		files = []models.MediaFile{}
	}
	return files, nil
}

// Delete removes one of owner's files and its metadata.
func (s *Service) Delete(ctx context.Context, owner, filename string) error {
	doc, err := s.Get(ctx, owner, filename)
	if err != nil {
		return err
	}
	if err := s.db.Delete(ctx, models.CollectionMedia, filename); err != nil {
		return err
	}
	if err := upload.Remove(s.cfg.UploadPath, filename); err != nil {
		if !errors.Is(err, upload.ErrFileDoesNotExist) {
			return fmt.Errorf("remove media file: %w", err)
		}
		logging.Ctx(ctx).Warn().Str("file", filename).Msg("Media file already missing on disk")
	}

	s.bus.Publish(ctx, eventbus.NewEvent(eventbus.MediaDeleted, ModuleName, map[string]any{
		"filename": doc.Filename,
		"url":      doc.URL,
		"user_id":  owner,
	}))
	return nil
}
