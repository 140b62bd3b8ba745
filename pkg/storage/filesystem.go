package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalStorage persists objects on disk under a base directory. The
// directory name doubles as the bucket in returned references.
type LocalStorage struct {
	baseDir string
	bucket  string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./evidence"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, bucket: filepath.Base(baseDir)}, nil
}

// Bucket returns the bucket name references carry.
func (s *LocalStorage) Bucket() string {
	return s.bucket
}

// Upload writes the bytes under a unique name derived from pathHint and
// returns the reference callers persist in place of the raw payload.
func (s *LocalStorage) Upload(ctx context.Context, data []byte, pathHint string) (ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return ObjectRef{}, err
	}
	hint := sanitizeHint(pathHint)
	rel := filepath.Join(time.Now().UTC().Format("2006/01/02"), fmt.Sprintf("%s-%s", hint, uuid.NewString()))
	full := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ObjectRef{}, fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return ObjectRef{}, fmt.Errorf("write object: %w", err)
	}
	return ObjectRef{
		Bucket: s.bucket,
		Path:   rel,
		URL:    fmt.Sprintf("file://%s", full),
	}, nil
}

// Delete removes the listed objects, ignoring paths that are already gone.
func (s *LocalStorage) Delete(ctx context.Context, bucket string, paths []string) error {
	if bucket != s.bucket {
		return fmt.Errorf("unknown bucket %q", bucket)
	}
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		full := filepath.Join(s.baseDir, filepath.Clean(rel))
		if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
			return fmt.Errorf("path %q escapes storage directory", rel)
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete object %s: %w", rel, err)
		}
	}
	return nil
}

// Open reads a stored object back. Paths escaping the base directory
// are rejected the same way Delete rejects them.
func (s *LocalStorage) Open(ctx context.Context, bucket, rel string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bucket != s.bucket {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	full := filepath.Join(s.baseDir, filepath.Clean(rel))
	if !strings.HasPrefix(full, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("path %q escapes storage directory", rel)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", rel, err)
	}
	return data, nil
}

func sanitizeHint(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return "object"
	}
	var b strings.Builder
	for _, r := range hint {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
