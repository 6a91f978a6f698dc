// Package backup snapshots the SRD collection to object storage. Snapshots
// take no lock on live SRD mutations.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/example/srdflow/internal/repository"
)

// Service writes JSON snapshots of all SRDs to a bucket.
type Service struct {
	client *minio.Client
	bucket string
	srds   *repository.SRDRepository
	logger *zap.Logger
}

// New connects to the object store and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, srds *repository.SRDRepository, logger *zap.Logger) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &Service{client: client, bucket: bucket, srds: srds, logger: logger}, nil
}

// Snapshot serializes every SRD and uploads one timestamped object. Returns
// the object name.
func (s *Service) Snapshot(ctx context.Context) (string, error) {
	srds, err := s.srds.All(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(srds)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("srd-snapshot-%s.json", time.Now().UTC().Format("20060102T150405Z"))
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("backup snapshot written",
		zap.String("object", name),
		zap.Int("srds", len(srds)))
	return name, nil
}
