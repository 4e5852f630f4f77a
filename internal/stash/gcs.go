package stash

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/youtube-archive-bot/internal/errs"
)

// GCSLister lists archived files stored as objects under <prefix>/<folder>/.
type GCSLister struct {
	Client     *storage.Client
	BucketName string
	Prefix     string
}

// NewGCSLister initializes a GCS client and verifies the bucket is reachable.
// Authentication uses Application Default Credentials.
func NewGCSLister(ctx context.Context, bucketName, prefix string, logger *zap.Logger) (*GCSLister, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("Failed to close GCS client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("failed to get GCS bucket '%s' attributes: %w", bucketName, err)
	}
	return &GCSLister{Client: client, BucketName: bucketName, Prefix: prefix}, nil
}

type object struct {
	name    string
	updated time.Time
}

// List returns the object base names under the folder, most recently updated first.
func (g *GCSLister) List(ctx context.Context, folder string) ([]string, error) {
	dir := folder + "/"
	if p := strings.Trim(g.Prefix, "/"); p != "" {
		dir = p + "/" + dir
	}

	it := g.Client.Bucket(g.BucketName).Objects(ctx, &storage.Query{Prefix: dir})
	var objects []object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, &errs.ListingFilesError{Folder: folder, Err: err}
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, object{name: path.Base(attrs.Name), updated: attrs.Updated})
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].updated.After(objects[j].updated)
	})
	names := make([]string, len(objects))
	for i, o := range objects {
		names[i] = o.name
	}
	return names, nil
}

// Close releases the underlying client.
func (g *GCSLister) Close() error {
	return g.Client.Close()
}
