// Package filestore keeps message attachments outside the database. A
// message row holds only the reference returned by Save.
package filestore

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store saves, opens and removes attachment blobs.
type Store interface {
	// Save writes the content and returns the reference to persist.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	// Open returns common.ErrorNotFound when the reference is unknown.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete succeeds for references that no longer exist.
	Delete(ctx context.Context, ref string) error
}

var newUUID = uuid.New

// NewKey builds a storage key of the form capsules/YYYY/M/D/<uuid>_<basename>.
func NewKey(now time.Time, name string) string {
	d := now.UTC()
	return fmt.Sprintf("capsules/%d/%d/%d/%v_%s", d.Year(), d.Month(), d.Day(), newUUID(), baseName(name))
}

// DisplayName strips the storage prefix from a reference, giving back the
// name the client uploaded.
func DisplayName(ref string) string {
	base := filepath.Base(filepath.FromSlash(ref))
	if i := strings.IndexByte(base, '_'); i >= 0 && i < len(base)-1 {
		return base[i+1:]
	}
	return base
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
