package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/wonny/demandcast/backend/pkg/config"
)

var (
	// ErrExists is returned by Put when the key is already taken
	ErrExists = errors.New("registry object already exists")
	// ErrNotFound is returned by Get for a missing key
	ErrNotFound = errors.New("registry object not found")
)

// Store is the immutable blob layer behind the registry.
// Put is create-only: objects are never overwritten.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Open builds the store addressed by cfg.URI (file://<dir> or s3://<bucket>/<prefix>)
func Open(ctx context.Context, cfg config.RegistryConfig) (Store, error) {
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse registry uri: %w", err)
	}

	switch u.Scheme {
	case "file", "":
		// file://./model_registry → Host "." + Path "/model_registry"
		dir := u.Host + u.Path
		if u.Scheme == "" {
			dir = cfg.URI
		}
		if dir == "" {
			return nil, fmt.Errorf("registry uri %q has no path", cfg.URI)
		}
		return NewFSStore(dir)
	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("registry uri %q has no bucket", cfg.URI)
		}
		return NewS3Store(ctx, S3Config{
			Bucket:    u.Host,
			Prefix:    strings.Trim(u.Path, "/"),
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported registry scheme %q", u.Scheme)
	}
}
