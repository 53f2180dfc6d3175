package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSStorage keeps preview artifacts in a Google Cloud Storage bucket,
// under an optional prefix.
type GCSStorage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStorage connects to bucketName and checks that it is reachable.
// projectID only appears in errors; credentials come from the environment.
func NewGCSStorage(ctx context.Context, projectID, bucketName, prefix string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	bucket := client.Bucket(bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("bucket %s (project %s) not accessible: %w", bucketName, projectID, err)
	}

	return &GCSStorage{client: client, bucket: bucket, prefix: path.Clean("/" + prefix)[1:]}, nil
}

func (s *GCSStorage) key(p string) (string, error) {
	cleaned, err := Clean(p)
	if err != nil {
		return "", err
	}
	return path.Join(s.prefix, cleaned), nil
}

func (s *GCSStorage) object(p string) (*storage.ObjectHandle, error) {
	key, err := s.key(p)
	if err != nil {
		return nil, err
	}
	return s.bucket.Object(key), nil
}

// Write uploads one artifact in a single request
func (s *GCSStorage) Write(ctx context.Context, p string, data []byte) error {
	obj, err := s.object(p)
	if err != nil {
		return err
	}

	w := obj.NewWriter(ctx)
	w.ContentType = ContentType(p)
	w.CacheControl = cacheControl(p)
	w.ChunkSize = 0 // artifacts are small; skip resumable uploads

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("upload %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", p, err)
	}
	return nil
}

func (s *GCSStorage) Read(ctx context.Context, p string) ([]byte, error) {
	obj, err := s.object(p)
	if err != nil {
		return nil, err
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// ReadSeeker buffers the whole object; sheets, cues and metadata are small.
func (s *GCSStorage) ReadSeeker(ctx context.Context, p string) (io.ReadSeeker, error) {
	data, err := s.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Delete removes an artifact. Missing objects are not an error.
func (s *GCSStorage) Delete(ctx context.Context, p string) error {
	obj, err := s.object(p)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

func (s *GCSStorage) Exists(ctx context.Context, p string) (bool, error) {
	obj, err := s.object(p)
	if err != nil {
		return false, err
	}
	switch _, err := obj.Attrs(ctx); {
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return true, nil
}

// List returns the artifact names stored directly under dir, e.g. the
// sheets, cue file and metadata of one stem.
func (s *GCSStorage) List(ctx context.Context, dir string) ([]string, error) {
	prefix, err := s.key(dir)
	if err != nil {
		return nil, err
	}

	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix + "/", Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", dir, err)
		}
		if attrs.Name != "" { // synthetic prefix entries have no name
			names = append(names, path.Base(attrs.Name))
		}
	}
}

func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// SignedURL returns a V4 signed GET link to an artifact
func (s *GCSStorage) SignedURL(p string, expiration time.Duration) (string, error) {
	key, err := s.key(p)
	if err != nil {
		return "", err
	}

	url, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiration),
	})
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", p, err)
	}
	return url, nil
}

// Regenerating a source rewrites every artifact under the same names, so
// none of them is cached for long.
func cacheControl(p string) string {
	switch path.Ext(p) {
	case ".jpg", ".png", ".vtt", ".json":
		return "public, max-age=300"
	default:
		return "no-cache"
	}
}
