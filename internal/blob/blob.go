// Package blob stores raw uploaded files on the local filesystem as
// sequences of numbered chunks, one directory per log. It stands in for the
// object store that holds uploads before ingestion.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ridesync-data/ridesync/internal/security"
)

// Store lays uploads out as <root>/<owner>/<log>/chunk_00000.part.
// Chunk indexes are contiguous from zero; ingestion reads them back in
// order and reassembles on line boundaries.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", dir, err)
	}
	return &Store{root: dir}, nil
}

// logDir resolves the directory for a log's chunks. Owner and log IDs
// arrive from request paths, so the joined path is validated against the
// store root before use.
func (s *Store) logDir(ownerID, logID string) (string, error) {
	dir := filepath.Join(s.root, ownerID, logID)
	if err := security.ValidatePathWithinDirectory(dir, s.root); err != nil {
		return "", fmt.Errorf("resolve chunk dir: %w", err)
	}
	return dir, nil
}

func chunkName(n int) string {
	return fmt.Sprintf("chunk_%05d.part", n)
}

// WriteChunk stores one chunk, overwriting any existing chunk with the same
// index, and returns the byte count written. Overwrites keep retried
// uploads idempotent.
func (s *Store) WriteChunk(ownerID, logID string, n int, r io.Reader) (int64, error) {
	dir, err := s.logDir(ownerID, logID)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create chunk dir: %w", err)
	}

	// Write to a temp name first so a torn write never looks like a
	// complete chunk.
	tmp, err := os.CreateTemp(dir, "chunk_*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create chunk temp file: %w", err)
	}
	written, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write chunk %d: %w", n, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, chunkName(n))); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("finalize chunk %d: %w", n, err)
	}
	return written, nil
}

// OpenChunks opens every stored chunk for a log in index order. Implements
// the opener interface the ingestion runner consumes. The caller closes the
// returned readers.
func (s *Store) OpenChunks(ctx context.Context, ownerID, logID string) ([]io.ReadCloser, error) {
	dir, err := s.logDir(ownerID, logID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chunk dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "chunk_") && strings.HasSuffix(e.Name(), ".part") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no chunks stored for log %s", logID)
	}
	sort.Strings(names)

	readers := make([]io.ReadCloser, 0, len(names))
	for _, name := range names {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			for _, r := range readers {
				r.Close()
			}
			return nil, fmt.Errorf("open chunk %s: %w", name, err)
		}
		readers = append(readers, f)
	}
	return readers, nil
}

// TotalSize returns the combined byte size of all stored chunks for a log.
func (s *Store) TotalSize(ownerID, logID string) (int64, error) {
	dir, err := s.logDir(ownerID, logID)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read chunk dir: %w", err)
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Remove deletes every stored chunk for a log.
func (s *Store) Remove(ownerID, logID string) error {
	dir, err := s.logDir(ownerID, logID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
