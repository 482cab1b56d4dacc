package events

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// uploadTimeout bounds a single archive upload.
const uploadTimeout = 30 * time.Second

// S3Config holds the settings for journal archival to S3-compatible storage.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`
	Bucket          string `json:"bucket,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

// IsConfigured returns true when the required S3 settings are present.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Interval returns the archive cadence, defaulting to hourly.
func (c *S3Config) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// createS3Client creates an S3 client with the given configuration.
func createS3Client(cfg *S3Config) *s3.Client {
	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}

	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.New(s3.Options{}, options...)
}

// Archiver periodically uploads the event journal to S3. Each upload is a
// full snapshot under a date-stamped key, so a lost host still leaves the
// journal recoverable up to the last cadence.
type Archiver struct {
	cfg     S3Config
	client  *s3.Client
	journal string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewArchiver creates an archiver for the journal at journalPath.
func NewArchiver(cfg S3Config, journalPath string) *Archiver {
	return &Archiver{
		cfg:     cfg,
		client:  createS3Client(&cfg),
		journal: journalPath,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the archive loop.
func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop performs a final upload and waits for the loop to exit.
func (a *Archiver) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}

func (a *Archiver) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			a.upload()
			return
		case <-ticker.C:
			a.upload()
		}
	}
}

func (a *Archiver) upload() {
	data, err := os.ReadFile(a.journal)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("journal archive read failed", "path", a.journal, "error", err)
		}
		return
	}
	if len(data) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	key := path.Join(a.cfg.Prefix, time.Now().UTC().Format("2006/01/02"), "ducker.jsonl")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		slog.Warn("journal archive upload failed", "key", key, "error", err)
		return
	}
	slog.Debug("journal archived", "key", key, "bytes", len(data))
}

// TestS3Connection verifies bucket access by uploading and deleting a
// small test object.
func TestS3Connection(cfg *S3Config) error {
	if !cfg.IsConfigured() {
		return fmt.Errorf("S3 is not configured")
	}

	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	testKey := fmt.Sprintf("test-connection-%d.txt", time.Now().UnixNano())
	testContent := []byte("ZuidWest FM ducker connection test")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("upload test file: %w", err)
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})
	if err != nil {
		slog.Warn("failed to delete test file", "key", testKey, "error", err)
	}

	return nil
}
