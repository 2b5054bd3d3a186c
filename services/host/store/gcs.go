// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore is the bucket-backed ObjectStore used in production.
type GCSStore struct {
	storageClient *storage.Client
	BucketName    string

	// PublicBaseURL prefixes returned object URLs. Defaults to the
	// storage.googleapis.com form when empty.
	PublicBaseURL string
}

// NewGCSStore creates a GCSStore. saKeyPath may be empty to use
// ambient credentials.
func NewGCSStore(ctx context.Context, bucketName, saKeyPath string) (*GCSStore, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStore{
		storageClient: storageClient,
		BucketName:    bucketName,
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.storageClient.Close()
}

// UploadFiles implements ObjectStore. Per-file failures are collected;
// the method itself only errors on total failure of the batch setup.
func (s *GCSStore) UploadFiles(ctx context.Context, files []UploadRequest) (*UploadResult, error) {
	result := &UploadResult{}
	for _, f := range files {
		url, err := s.uploadOne(ctx, f.LocalPath, f.RemotePath)
		if err != nil {
			slog.Warn("Screenshot upload failed", "remote_path", f.RemotePath, "error", err)
			result.FailedUploads = append(result.FailedUploads, FailedUpload{
				RemotePath: f.RemotePath,
				Error:      err.Error(),
			})
			continue
		}
		result.UploadedFiles = append(result.UploadedFiles, UploadedFile{
			RemotePath: f.RemotePath,
			URL:        url,
		})
	}
	return result, nil
}

// UploadNavigationScreenshot implements ObjectStore.
func (s *GCSStore) UploadNavigationScreenshot(ctx context.Context, localPath, userInterfaceName, filename string) (string, error) {
	remotePath := path.Join("navigation", userInterfaceName, filename)
	return s.uploadOne(ctx, localPath, remotePath)
}

func (s *GCSStore) uploadOne(ctx context.Context, localPath, remotePath string) (string, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open the local file %s: %w", localPath, err)
	}
	defer localFile.Close()

	obj := s.storageClient.Bucket(s.BucketName).Object(remotePath)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeFor(localPath)
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return "", fmt.Errorf("failed to copy %s to object %s: %w", localPath, remotePath, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer for %s: %w", remotePath, err)
	}

	return s.objectURL(remotePath), nil
}

func (s *GCSStore) objectURL(remotePath string) string {
	if s.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.PublicBaseURL, remotePath)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.BucketName, remotePath)
}

func contentTypeFor(localPath string) string {
	if ct := mime.TypeByExtension(filepath.Ext(localPath)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
