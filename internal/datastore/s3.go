package datastore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store implements Store against an S3-compatible bucket (grounded on
// the teacher's internal/upload R2-via-S3-API wiring), object key
// "<tenant>/<dataCid>". Reference counts live in a small Postgres side
// table (dwn_data_refs) since S3 itself has no notion of reference
// counting; lib/pq is already a dependency of the message store.
type S3Store struct {
	s3Client   *s3.Client
	db         *sql.DB
	bucketName string
	logger     *slog.Logger
}

// S3StoreConfig configures an S3Store.
type S3StoreConfig struct {
	S3Client   *s3.Client
	DB         *sql.DB
	BucketName string
	Logger     *slog.Logger
}

// NewS3Store creates an S3Store.
func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.S3Client == nil {
		return nil, errors.New("datastore: s3 client is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("datastore: db is required")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("datastore: bucket name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{s3Client: cfg.S3Client, db: cfg.DB, bucketName: cfg.BucketName, logger: logger}, nil
}

func objectKey(tenant, dataCID string) string {
	return tenant + "/" + dataCID
}

func (s *S3Store) Put(ctx context.Context, tenant, recordID, dataCID string, r io.Reader) (PutResult, error) {
	h := sha256.New()
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.TeeReader(r, h))
	if err != nil {
		return PutResult{}, fmt.Errorf("datastore: read body: %w", err)
	}

	if hex.EncodeToString(h.Sum(nil)) != dataCID {
		return PutResult{}, ErrDataCidMismatch
	}

	exists, err := s.blockExists(ctx, tenant, dataCID)
	if err != nil {
		return PutResult{}, err
	}
	if !exists {
		_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(objectKey(tenant, dataCID)),
			Body:   bytes.NewReader(buf.Bytes()),
		})
		if err != nil {
			s.logger.Error("datastore: put object failed",
				slog.String("tenant", tenant),
				slog.String("data_cid", dataCID),
				slog.String("error", err.Error()))
			return PutResult{}, fmt.Errorf("datastore: put object: %w", err)
		}
	}

	if err := s.addRef(ctx, tenant, recordID, dataCID); err != nil {
		return PutResult{}, err
	}

	return PutResult{DataSize: n}, nil
}

func (s *S3Store) Get(ctx context.Context, tenant, recordID, dataCID string) (io.ReadCloser, error) {
	referenced, err := s.hasRef(ctx, tenant, recordID, dataCID)
	if err != nil {
		return nil, err
	}
	if !referenced {
		return nil, ErrNotFound
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(tenant, dataCID)),
	})
	if err != nil {
		return nil, fmt.Errorf("datastore: get object: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Associate(ctx context.Context, tenant, recordID, dataCID string) error {
	exists, err := s.blockExists(ctx, tenant, dataCID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return s.addRef(ctx, tenant, recordID, dataCID)
}

func (s *S3Store) Delete(ctx context.Context, tenant, recordID, dataCID string) error {
	const deleteRef = `DELETE FROM dwn_data_refs WHERE tenant = $1 AND record_id = $2 AND data_cid = $3`
	if _, err := s.db.ExecContext(ctx, deleteRef, tenant, recordID, dataCID); err != nil {
		return fmt.Errorf("datastore: delete ref: %w", err)
	}

	remaining, err := s.refCount(ctx, tenant, dataCID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}

	_, err = s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(tenant, dataCID)),
	})
	if err != nil {
		return fmt.Errorf("datastore: delete object: %w", err)
	}
	return nil
}

func (s *S3Store) addRef(ctx context.Context, tenant, recordID, dataCID string) error {
	const query = `
		INSERT INTO dwn_data_refs (tenant, record_id, data_cid, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant, record_id, data_cid) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, tenant, recordID, dataCID); err != nil {
		return fmt.Errorf("datastore: add ref: %w", err)
	}
	return nil
}

func (s *S3Store) hasRef(ctx context.Context, tenant, recordID, dataCID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM dwn_data_refs WHERE tenant = $1 AND record_id = $2 AND data_cid = $3)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, tenant, recordID, dataCID).Scan(&exists); err != nil {
		return false, fmt.Errorf("datastore: check ref: %w", err)
	}
	return exists, nil
}

func (s *S3Store) blockExists(ctx context.Context, tenant, dataCID string) (bool, error) {
	count, err := s.refCount(ctx, tenant, dataCID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *S3Store) refCount(ctx context.Context, tenant, dataCID string) (int, error) {
	const query = `SELECT COUNT(*) FROM dwn_data_refs WHERE tenant = $1 AND data_cid = $2`
	var count int
	if err := s.db.QueryRowContext(ctx, query, tenant, dataCID).Scan(&count); err != nil {
		return 0, fmt.Errorf("datastore: count refs: %w", err)
	}
	return count, nil
}
