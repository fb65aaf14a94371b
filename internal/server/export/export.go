// Package export writes a JSON snapshot of the visible contact list to an
// S3-compatible bucket and hands back a presigned download URL.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/contactsync/internal/logging"
	"github.com/dmitrijs2005/contactsync/internal/models"
	"github.com/dmitrijs2005/contactsync/internal/protocol"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

const defaultPrefix = "exports"

// Options describes the target bucket. An empty Bucket disables export.
type Options struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Prefix       string
	PresignTTL   time.Duration
}

// Enabled reports whether a bucket is configured.
func (o Options) Enabled() bool {
	return o.Bucket != ""
}

// Lister supplies the records to export.
type Lister interface {
	ListVisible(ctx context.Context) ([]*models.Contact, error)
}

type Exporter struct {
	opts     Options
	contacts Lister
	logger   logging.Logger
	now      func() time.Time
	newID    func() string
}

func NewExporter(opts Options, contacts Lister, logger logging.Logger) *Exporter {
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	return &Exporter{
		opts:     opts,
		contacts: contacts,
		logger:   logger.With("module", "export"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (e *Exporter) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(e.opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			e.opts.AccessKey,
			e.opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if e.opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(e.opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (e *Exporter) key() string {
	d := e.now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s.json", e.opts.Prefix, d.Year(), d.Month(), d.Day(), e.newID())
}

// Export uploads the current visible list and returns where to fetch it.
func (e *Exporter) Export(ctx context.Context) (*protocol.ExportResponse, error) {
	list, err := e.contacts.ListVisible(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(protocol.RecordsFrom(list))
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	client, err := e.client(ctx)
	if err != nil {
		return nil, err
	}

	bucket := e.opts.Bucket
	key := e.key()

	if err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(e.opts.PresignTTL))
	if err != nil {
		return nil, fmt.Errorf("presign snapshot: %w", err)
	}

	e.logger.Info(ctx, "snapshot exported", "key", key, "count", len(list))
	return &protocol.ExportResponse{Key: key, URL: req.URL, Count: len(list)}, nil
}
