package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"threadhub/internal/config"
	"threadhub/internal/model"
	"threadhub/internal/transcript"
)

// ObjectStore is the subset of an S3-compatible client the archive needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// MinioStore writes objects into a single bucket on a MinIO/S3 endpoint.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStore(cfg config.ArchiveConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// ArchiveResult names the objects written for one archive run.
type ArchiveResult struct {
	ThreadID      string `json:"thread_id"`
	LastSeq       int64  `json:"last_seq"`
	JSONKey       string `json:"json_key"`
	TranscriptKey string `json:"transcript_key"`
}

type archiveDocument struct {
	Thread     *model.Thread         `json:"thread"`
	Messages   []model.StoredMessage `json:"messages"`
	Turns      *model.ThreadTurns    `json:"turns"`
	ArchivedAt string                `json:"archived_at"`
}

// ArchiveService exports a thread's stored messages and reconciled turns to
// object storage. A nil store disables archiving.
type ArchiveService struct {
	threads  *ThreadService
	messages *MessageService
	store    ObjectStore
	logger   *slog.Logger
	now      func() time.Time
}

func NewArchiveService(threads *ThreadService, messages *MessageService, store ObjectStore, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		threads:  threads,
		messages: messages,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ArchiveService) Archive(ctx context.Context, threadID string) (*ArchiveResult, error) {
	if s.store == nil {
		return nil, &model.UnavailableError{Feature: "archive storage"}
	}
	thread, err := s.threads.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	stored, err := s.messages.List(ctx, threadID, 0)
	if err != nil {
		return nil, err
	}
	msgs, lastSeq, err := s.messages.Snapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}
	view := Build(threadID, lastSeq, msgs)

	now := s.now().UTC()
	doc, err := json.MarshalIndent(archiveDocument{
		Thread:     thread,
		Messages:   stored,
		Turns:      view,
		ArchivedAt: now.Format(time.RFC3339Nano),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}
	text := []byte(transcript.Render(view.Turns))

	base := fmt.Sprintf("threads/%s/%s", threadID, now.Format("20060102T150405Z"))
	res := &ArchiveResult{
		ThreadID:      threadID,
		LastSeq:       lastSeq,
		JSONKey:       base + ".json",
		TranscriptKey: base + ".txt",
	}
	if err := s.store.Put(ctx, res.JSONKey, "application/json", bytes.NewReader(doc), int64(len(doc))); err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, res.TranscriptKey, "text/plain; charset=utf-8", bytes.NewReader(text), int64(len(text))); err != nil {
		return nil, err
	}
	s.logger.Info("thread archived", "thread_id", threadID, "last_seq", lastSeq, "key", res.JSONKey)
	return res, nil
}
