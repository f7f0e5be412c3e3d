package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fabricflow/internal/shared"
)

type mockRepository struct {
	mu        sync.Mutex
	orders    map[int64]bool
	docs      map[int64]Document
	next      int64
	createErr error
}

func newMockRepository(orderIDs ...int64) *mockRepository {
	m := &mockRepository{orders: map[int64]bool{}, docs: map[int64]Document{}}
	for _, id := range orderIDs {
		m.orders[id] = true
	}
	return m
}

func (m *mockRepository) OrderExists(_ context.Context, id int64) (bool, error) {
	return m.orders[id], nil
}

func (m *mockRepository) Create(_ context.Context, d Document) (Document, error) {
	if m.createErr != nil {
		return Document{}, m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	d.ID = m.next
	m.docs[d.ID] = d
	return d, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *mockRepository) List(_ context.Context, f ListFilter) ([]Document, error) {
	var out []Document
	for _, d := range m.docs {
		if d.OrderID == f.OrderID && (f.Category == nil || d.Category == *f.Category) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

type memoryStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStorage) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return "mem://" + key, nil
}

func (s *memoryStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func newTestService(orderIDs ...int64) (*Service, *mockRepository, *memoryStorage) {
	repo := newMockRepository(orderIDs...)
	storage := newMemoryStorage()
	return NewService(repo, storage, slog.New(slog.NewTextHandler(io.Discard, nil))), repo, storage
}

var uploader = shared.Actor{ID: 3, Name: "Hasan"}

type uploadCounter map[string]int64

func (c uploadCounter) ObserveUpload(category string, size int64) { c[category] += size }

func TestUploadStoresFileAndMetadata(t *testing.T) {
	svc, _, storage := newTestService(1)
	counted := uploadCounter{}
	svc.WithObserver(counted)
	doc, err := svc.Upload(context.Background(), Upload{
		OrderID:      1,
		FileName:     "../../lab dip (final).png",
		DeclaredType: "image/png",
		Category:     "sample",
		Subcategory:  "labDip",
		Description:  " shade B ",
		Body:         bytes.NewReader(pngHead),
	}, uploader)
	require.NoError(t, err)

	assert.Equal(t, "lab_dip_final_.png", doc.FileName)
	assert.Equal(t, "image/png", doc.FileType)
	assert.Equal(t, int64(len(pngHead)), doc.FileSize)
	assert.True(t, strings.HasPrefix(doc.StorageKey, "orders/1/"))
	assert.Equal(t, "mem://"+doc.StorageKey, doc.FileURL)
	assert.Equal(t, "shade B", *doc.Description)
	assert.Equal(t, "Hasan", doc.UploaderName)
	assert.Equal(t, pngHead, storage.objects[doc.StorageKey])
	assert.Equal(t, uploadCounter{"sample": int64(len(pngHead))}, counted)

	doc2, rc, err := svc.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, pngHead, data)
	assert.Equal(t, doc.ID, doc2.ID)
}

func TestUploadSizeCeiling(t *testing.T) {
	svc, _, _ := newTestService(1)
	ctx := context.Background()

	exact := bytes.Repeat([]byte("a"), MaxFileSize)
	doc, err := svc.Upload(ctx, Upload{OrderID: 1, FileName: "notes.txt", Body: bytes.NewReader(exact)}, uploader)
	require.NoError(t, err)
	assert.Equal(t, int64(MaxFileSize), doc.FileSize)

	over := append(exact, 'b')
	_, err = svc.Upload(ctx, Upload{OrderID: 1, FileName: "notes.txt", Body: bytes.NewReader(over)}, uploader)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(ctx, Upload{OrderID: 1, FileName: "big.pdf", Size: MaxFileSize + 1, Body: bytes.NewReader(pdfHead)}, uploader)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestUploadRejections(t *testing.T) {
	svc, _, storage := newTestService(1)
	ctx := context.Background()

	_, err := svc.Upload(ctx, Upload{OrderID: 1, Category: "lc", Subcategory: "labDip", Body: bytes.NewReader(pdfHead)}, uploader)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, err = svc.Upload(ctx, Upload{OrderID: 2, Body: bytes.NewReader(pdfHead)}, uploader)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Upload(ctx, Upload{OrderID: 1, Body: strings.NewReader("<html><script>x</script></html>")}, uploader)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.Upload(ctx, Upload{OrderID: 1, Body: bytes.NewReader(nil)}, uploader)
	assert.ErrorIs(t, err, ErrEmptyFile)

	assert.Empty(t, storage.objects)
}

func TestUploadCleansStorageWhenMetadataFails(t *testing.T) {
	svc, repo, storage := newTestService(1)
	repo.createErr = errors.New("db down")
	_, err := svc.Upload(context.Background(), Upload{OrderID: 1, Body: bytes.NewReader(pdfHead)}, uploader)
	require.Error(t, err)
	assert.Empty(t, storage.objects)
}

func TestDeleteRemovesMetadataAndObject(t *testing.T) {
	svc, repo, storage := newTestService(1)
	ctx := context.Background()
	doc, err := svc.Upload(ctx, Upload{OrderID: 1, Category: "pi", Body: bytes.NewReader(pdfHead)}, uploader)
	require.NoError(t, err)

	docs, err := svc.List(ctx, 1, "pi")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Empty(t, repo.docs)
	assert.Empty(t, storage.objects)
	assert.ErrorIs(t, svc.Delete(ctx, doc.ID), ErrNotFound)

	_, err = svc.List(ctx, 1, "bogus")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}
