package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/amplimindcc/backend-sub000/internal/publisher"
)

// ArchiveStore keeps the raw uploaded archive of every submission in object
// storage, so the original bytes survive independently of the published
// repository.
type ArchiveStore struct {
	s3Client *s3.Client
	bucket   *string
}

func NewArchiveStore(ctx context.Context, client *s3.Client, bucketName string) (*ArchiveStore, error) {
	s := &ArchiveStore{s3Client: client, bucket: aws.String(bucketName)}
	if err := s.createBucket(ctx, bucketName); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ArchiveStore) Put(ctx context.Context, identity string, archive []byte) error {
	key := fmt.Sprintf("%s/%d.zip", publisher.RepoNameFor(identity), time.Now().UnixMilli())
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         aws.String(key),
		Body:        bytes.NewReader(archive),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to store archive %s: %w", key, err)
	}
	return nil
}

func (s *ArchiveStore) createBucket(ctx context.Context, name string) error {
	_, err := s.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var opErr *awshttp.ResponseError
		if errors.As(err, &opErr) && opErr.HTTPStatusCode() == 409 {
			return nil
		}
	}
	return err
}
