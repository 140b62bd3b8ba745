package storage

import "context"

// ObjectRef points at a stored object. The ledger and face profiles
// persist references only, never raw bytes.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

// ObjectStorage abstracts the backing store for evidence photos and
// face enrollment samples.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, pathHint string) (ObjectRef, error)
	Delete(ctx context.Context, bucket string, paths []string) error
}
