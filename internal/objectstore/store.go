// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package objectstore abstracts the destination archived measurement
// blocks are uploaded to: an S3-compatible bucket in production, or a
// local directory for development and tests.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ichnaea-go/locationd/internal/config"
)

// Store is the destination an archive writer uploads a block's zip to.
type Store interface {
	// Put uploads data under key and returns nothing on success.
	Put(ctx context.Context, key string, data []byte) error
	// Get retrieves the object previously stored under key, so the
	// reaper can verify an archive's content before deleting its
	// source rows.
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds a Store from cfg: a LocalPath routes to the filesystem,
// otherwise an S3-compatible bucket is used.
func New(cfg config.ObjectStoreConfig) (Store, error) {
	if cfg.LocalPath != "" {
		return NewFileStore(cfg.LocalPath)
	}
	return NewS3Store(cfg)
}

// FileStore writes blocks to a local filesystem directory. Used for
// development and in tests in place of a real bucket.
type FileStore struct {
	path string
}

// NewFileStore creates (if needed) and returns a FileStore rooted at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (fs *FileStore) Put(_ context.Context, key string, data []byte) error {
	dest := filepath.Join(fs.path, key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o640)
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(fs.path, key))
}

// S3Store writes blocks to an S3-compatible object store.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store from cfg.
func NewS3Store(cfg config.ObjectStoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("object store: empty bucket name")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("object store: load AWS config: %w", err)
	}

	opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg, opts), bucket: cfg.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("object store: put object %q: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("object store: get object %q: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
