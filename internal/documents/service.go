package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/fabricflow/internal/shared"
)

// Upload is one file submitted for an order.
type Upload struct {
	OrderID      int64
	FileName     string
	DeclaredType string
	Size         int64
	Category     string
	Subcategory  string
	Description  string
	Body         io.Reader
}

// UploadObserver counts stored documents.
type UploadObserver interface {
	ObserveUpload(category string, size int64)
}

// Service validates uploads and keeps metadata and stored bytes in step.
type Service struct {
	repo     Repository
	storage  Storage
	observer UploadObserver
	logger   *slog.Logger
}

// NewService constructs Service.
func NewService(repo Repository, storage Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, storage: storage, logger: logger}
}

// WithObserver reports stored uploads to o.
func (s *Service) WithObserver(o UploadObserver) *Service {
	s.observer = o
	return s
}

// Upload validates and stores a file, then records its metadata.
func (s *Service) Upload(ctx context.Context, in Upload, actor shared.Actor) (*Document, error) {
	if in.Size > MaxFileSize {
		return nil, ErrTooLarge
	}
	category, err := ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	subcategory, err := ParseSubcategory(category, in.Subcategory)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.OrderExists(ctx, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return nil, ErrOrderNotFound
	}

	data, err := io.ReadAll(io.LimitReader(in.Body, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrTooLarge
	}
	fileType, err := DetectType(data, in.DeclaredType)
	if err != nil {
		return nil, err
	}

	name := cleanFileName(in.FileName)
	key := fmt.Sprintf("orders/%d/%s-%s", in.OrderID, uuid.NewString(), name)
	url, err := s.storage.Put(ctx, key, fileType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	doc := Document{
		OrderID:      in.OrderID,
		FileName:     name,
		FileType:     fileType,
		FileSize:     int64(len(data)),
		FileURL:      url,
		StorageKey:   key,
		Category:     category,
		Subcategory:  subcategory,
		UploadedBy:   actor.ID,
		UploaderName: actor.Name,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		doc.Description = &d
	}
	saved, err := s.repo.Create(ctx, doc)
	if err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("key", key), slog.Any("error", derr))
		}
		return nil, fmt.Errorf("save document: %w", err)
	}
	if s.observer != nil {
		s.observer.ObserveUpload(string(saved.Category), saved.FileSize)
	}
	s.logger.Info("document uploaded",
		slog.Int64("order_id", saved.OrderID),
		slog.Int64("document_id", saved.ID),
		slog.String("category", string(saved.Category)),
		slog.String("file_type", saved.FileType),
		slog.Int64("file_size", saved.FileSize),
	)
	return &saved, nil
}

// List returns the documents of an order, newest first.
func (s *Service) List(ctx context.Context, orderID int64, category string) ([]Document, error) {
	filter := ListFilter{OrderID: orderID}
	if category != "" {
		c, err := ParseCategory(category)
		if err != nil {
			return nil, err
		}
		filter.Category = &c
	}
	return s.repo.List(ctx, filter)
}

// Get returns one document's metadata.
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// Open returns the metadata and a reader over the stored bytes.
func (s *Service) Open(ctx context.Context, id int64) (*Document, io.ReadCloser, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}

// Delete removes the metadata, then the stored object. A storage failure
// after the metadata is gone is logged, not returned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, doc.StorageKey); err != nil {
		s.logger.Warn("delete stored document", slog.Int64("document_id", id), slog.String("key", doc.StorageKey), slog.Any("error", err))
	}
	s.logger.Info("document deleted", slog.Int64("document_id", id), slog.Int64("order_id", doc.OrderID))
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func cleanFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Trim(unsafeFileChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		return "file"
	}
	if len(base) > 120 {
		ext := filepath.Ext(base)
		if len(ext) > 16 {
			ext = ""
		}
		base = base[:120-len(ext)] + ext
	}
	return base
}
