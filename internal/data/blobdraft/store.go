// Package blobdraft persists buyer drafts as JSON objects in an
// S3-compatible bucket (AWS S3 or MinIO).
package blobdraft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hay-kot/pickup/internal/core/basket"
)

var _ basket.DraftStore = (*Store)(nil)

const contentType = "application/json"

// Config holds construction parameters. Credentials come from the default
// AWS chain (AWS_ACCESS_KEY_ID, shared config, instance roles).
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional; set for MinIO and other S3-compatible servers
	Prefix   string
	// PathStyle addresses buckets as endpoint/bucket instead of bucket.endpoint.
	PathStyle bool
}

// Store implements basket.DraftStore on one bucket. Each buyer's cart is a
// single object under Prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates a draft store from cfg.
func New(ctx context.Context, cfg Config, optFns ...func(*config.LoadOptions) error) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := append([]func(*config.LoadOptions) error{config.WithRegion(region)}, optFns...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key returns the object key holding buyerID's draft.
func (s *Store) Key(buyerID string) string {
	return s.prefix + buyerID + ".json"
}

// LoadDraft returns the persisted cart of buyerID.
func (s *Store) LoadDraft(ctx context.Context, buyerID string) (basket.Cart, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: aws.String(s.Key(buyerID))})
	if isNotFound(err) {
		return basket.Cart{}, false, nil
	}
	if err != nil {
		return basket.Cart{}, false, fmt.Errorf("get draft %s: %w", buyerID, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return basket.Cart{}, false, fmt.Errorf("read draft %s: %w", buyerID, err)
	}

	var cart basket.Cart
	if err := json.Unmarshal(body, &cart); err != nil {
		return basket.Cart{}, false, fmt.Errorf("decode draft %s: %w", buyerID, err)
	}
	return cart, true, nil
}

// SaveDraft overwrites the object holding buyerID's draft.
func (s *Store) SaveDraft(ctx context.Context, buyerID string, cart basket.Cart) error {
	body, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         aws.String(s.Key(buyerID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put draft %s: %w", buyerID, err)
	}
	return nil
}

// ClearDraft deletes buyerID's draft. S3 deletes are idempotent.
func (s *Store) ClearDraft(ctx context.Context, buyerID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: aws.String(s.Key(buyerID))})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete draft %s: %w", buyerID, err)
	}
	return nil
}

// Buyers lists the buyers with a persisted draft.
func (s *Store) Buyers(ctx context.Context) ([]string, error) {
	var (
		buyers []string
		token  *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if id, ok := strings.CutSuffix(name, ".json"); ok {
				buyers = append(buyers, id)
			}
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return buyers, nil
		}
		token = out.NextContinuationToken
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
