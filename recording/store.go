package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "qwopgym"

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Backend is fs, s3 or memory.
	Backend string
	// Path is the root directory for fs, or "bucket/prefix" for s3.
	Path string
	// Region is the AWS region (s3 only, default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing (MinIO, R2).
	UsePathStyle bool
}

// Validate checks the backend and its required fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case BackendFS:
		if c.Path == "" {
			return errors.New("fs backend requires a path")
		}
	case BackendS3:
		if bucket, _ := ParseS3Path(c.Path); bucket == "" {
			return errors.New("s3 backend requires a bucket")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" into its parts.
func ParseS3Path(path string) (bucket, prefix string) {
	parts := strings.SplitN(path, "/", 2)
	bucket = parts[0]
	if len(parts) > 1 {
		prefix = parts[1]
	}
	return bucket, prefix
}

// NewStoreFactory builds a lode store factory for cfg. The memory backend
// hands out one shared store so readers see what writers wrote.
func NewStoreFactory(ctx context.Context, cfg StoreConfig) (lode.StoreFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendFS:
		return lode.NewFSFactory(cfg.Path), nil
	case BackendMemory:
		return SharedFactory(lode.NewMemory()), nil
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrapStorage("init", cfg.Path, fmt.Errorf("load AWS config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	bucket, prefix := ParseS3Path(cfg.Path)
	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: bucket,
			Prefix: prefix,
		})
	}, nil
}

// SharedFactory returns a factory that always yields store.
func SharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

// OpenDataset opens the episode dataset with the layout and codec the
// recorder writes.
func OpenDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("session", "day", "record_kind"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrapStorage("init", dataset, err)
	}
	return ds, nil
}
