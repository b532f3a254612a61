// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package upload receives multipart file uploads, checks their content
// against the declared type and writes them to local storage under
// generated names.
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// multipartMemory is the in-memory part of a parsed form; larger parts
// spill to temporary files.
const multipartMemory = 8 << 20

// formOverhead is the slack allowed on top of the file size for the rest of
// the multipart body.
const formOverhead = 1 << 20

var (
	ErrMissingFile      = errors.New("no file provided")
	ErrTooLarge         = errors.New("file too large")
	ErrTypeNotAllowed   = errors.New("file type not allowed")
	ErrContentMismatch  = errors.New("file content does not match its declared type")
	ErrInvalidFilename  = errors.New("invalid file name")
	ErrFileDoesNotExist = errors.New("file does not exist")
)

// File is a received upload held in memory.
type File struct {
	OriginalName string
	DeclaredType string
	DetectedType string
	Data         []byte

	detected *mimetype.MIME
}

// Size returns the number of bytes received.
func (f *File) Size() int64 { return int64(len(f.Data)) }

// Read parses the multipart form of r and reads the file in field. Files
// above maxSize are rejected with ErrTooLarge.
func Read(w http.ResponseWriter, r *http.Request, field string, maxSize int64) (*File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("parse upload: %w", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, ErrMissingFile
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	defer file.Close()

	if header.Size > maxSize {
		return nil, ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrMissingFile
	}

	detected := mimetype.Detect(data)
	declared := header.Header.Get("Content-Type")
	if declared == "" {
		declared = detected.String()
	}
	return &File{
		OriginalName: filepath.Base(header.Filename),
		DeclaredType: normalizeType(declared),
		DetectedType: normalizeType(detected.String()),
		Data:         data,
		detected:     detected,
	}, nil
}

// Check verifies that the declared type is in allowed and that the sniffed
// content belongs to the same family (image, video, audio).
func (f *File) Check(allowed []string) error {
	if !typeAllowed(f.DeclaredType, allowed) {
		return fmt.Errorf("%w: %s", ErrTypeNotAllowed, f.DeclaredType)
	}
	if !sameFamily(f.DeclaredType, f.detected) {
		return fmt.Errorf("%w: declared %s, detected %s", ErrContentMismatch, f.DeclaredType, f.DetectedType)
	}
	return nil
}

// Extension returns the lower-case extension of the original file name, or
// of the detected type, or fallback.
func (f *File) Extension(fallback string) string {
	if ext := cleanExt(filepath.Ext(f.OriginalName)); ext != "" {
		return ext
	}
	if f.detected != nil {
		if ext := cleanExt(f.detected.Extension()); ext != "" {
			return ext
		}
	}
	return fallback
}

// StoredName returns a fresh "<uuid>.<ext>" file name.
func StoredName(ext string) string {
	return uuid.NewString() + "." + ext
}

// Save writes data to dir/name through a temporary file and rename so that
// readers never see a partial file.
func Save(dir, name string, data []byte) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}

// Remove deletes dir/name. A missing file is ErrFileDoesNotExist.
func Remove(dir, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrFileDoesNotExist
	}
	return err
}

// ValidateName rejects names that could escape the upload directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

// URL joins a public base URL and a path below it.
func URL(baseURL, path, name string) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(path, "/") + "/" + name
}

func normalizeType(t string) string {
	t, _, _ = strings.Cut(t, ";")
	return strings.ToLower(strings.TrimSpace(t))
}

func typeAllowed(t string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimSpace(a), t) {
			return true
		}
	}
	return false
}

// sameFamily reports whether the detected MIME type, or one of its
// ancestors, shares the top-level type of declared. Ogg containers are
// detected as application/ogg and accepted for audio and video.
func sameFamily(declared string, detected *mimetype.MIME) bool {
	family, _, _ := strings.Cut(declared, "/")
	for m := detected; m != nil; m = m.Parent() {
		got := normalizeType(m.String())
		if got == "application/ogg" && (family == "audio" || family == "video") {
			return true
		}
		if f, _, _ := strings.Cut(got, "/"); f == family {
			return true
		}
	}
	return false
}

func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
