package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	domain "github.com/samtaplin/llmneldacoding/internal/domain/analysis"
)

const documentPrefix = "analyses"

// Store keeps one JSON object per provenance document in a bucket.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: new client")
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, eris.Wrap(err, "storage: check bucket")
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, eris.Wrap(err, "storage: make bucket")
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// DocumentKey is the object key a document is written under.
func DocumentKey(d *domain.Document) string {
	return path.Join(documentPrefix, safeSegment(d.Parameters.ElectionID), string(d.ID)+".json")
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(s)
}

// Save writes the document as JSON and returns its object key.
func (s *Store) Save(ctx context.Context, d *domain.Document) (string, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return "", eris.Wrap(err, "storage: encode document")
	}
	key := DocumentKey(d)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", eris.Wrapf(err, "storage: put %s", key)
	}
	return key, nil
}

// ListByElection reads every document stored for an election and returns
// the newest ones.
func (s *Store) ListByElection(ctx context.Context, electionID string, limit int) ([]*domain.Document, error) {
	prefix := path.Join(documentPrefix, safeSegment(electionID)) + "/"

	docs := make([]*domain.Document, 0)
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, eris.Wrap(obj.Err, "storage: list documents")
		}
		body, err := s.Object(ctx, obj.Key)
		if err != nil {
			return nil, err
		}
		var d domain.Document
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, eris.Wrapf(err, "storage: decode %s", obj.Key)
		}
		docs = append(docs, &d)
	}
	return newest(docs, limit), nil
}

func newest(docs []*domain.Document, limit int) []*domain.Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CompletedAt.Equal(docs[j].CompletedAt) {
			return docs[i].CompletedAt.After(docs[j].CompletedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	if n := domain.ClampLimit(limit); len(docs) > n {
		docs = docs[:n]
	}
	return docs
}

// Object reads a whole object from the bucket.
func (s *Store) Object(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get %s", key)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return body, nil
}

// Check verifies the bucket is reachable.
func (s *Store) Check(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return eris.Wrap(err, "storage: check bucket")
	}
	if !ok {
		return eris.Errorf("storage: bucket %s missing", s.bucketName)
	}
	return nil
}
