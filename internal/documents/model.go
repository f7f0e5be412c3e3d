// Package documents stores files attached to orders: sample photos, LC and PI
// scans, test reports and mail.
package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/fabricflow/internal/approval"
	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
)

var (
	ErrNotFound         = fmt.Errorf("document %w", httpx.ErrNotFound)
	ErrUnsupportedType  = fmt.Errorf("file type not allowed: %w", httpx.ErrUnsupportedMedia)
	ErrTooLarge         = fmt.Errorf("file exceeds %d bytes: %w", MaxFileSize, httpx.ErrTooLarge)
	ErrInvalidCategory  = fmt.Errorf("document category %w", httpx.ErrValidation)
	ErrEmptyFile        = fmt.Errorf("empty file: %w", httpx.ErrValidation)
	ErrOrderNotFound    = fmt.Errorf("order %w", httpx.ErrNotFound)
	errStorageKeyEscape = fmt.Errorf("storage key escapes root: %w", httpx.ErrValidation)
)

// MaxFileSize is the upload ceiling.
const MaxFileSize = 10 * 1024 * 1024

// Category classifies a document.
type Category string

const (
	CategorySample     Category = "sample"
	CategoryLC         Category = "lc"
	CategoryPI         Category = "pi"
	CategoryTestReport Category = "test_report"
	CategoryEmail      Category = "email"
	CategoryOther      Category = "other"
)

// Categories lists every category.
func Categories() []Category {
	return []Category{CategorySample, CategoryLC, CategoryPI, CategoryTestReport, CategoryEmail, CategoryOther}
}

// ParseCategory validates a raw category. Empty input means other.
func ParseCategory(raw string) (Category, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return CategoryOther, nil
	}
	for _, c := range Categories() {
		if Category(trimmed) == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidCategory, raw)
}

// ParseSubcategory validates the subcategory for category. Only sample
// documents carry one.
func ParseSubcategory(category Category, raw string) (*approval.SampleSubtype, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if category != CategorySample {
		return nil, fmt.Errorf("%w: subcategory is only allowed for sample documents", ErrInvalidCategory)
	}
	sub, err := approval.ParseSampleSubtype(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCategory, err)
	}
	return &sub, nil
}

// Document is the metadata of a stored file.
type Document struct {
	ID           int64                   `json:"id"`
	OrderID      int64                   `json:"order_id"`
	FileName     string                  `json:"file_name"`
	FileType     string                  `json:"file_type"`
	FileSize     int64                   `json:"file_size"`
	FileURL      string                  `json:"file_url"`
	StorageKey   string                  `json:"-"`
	Category     Category                `json:"category"`
	Subcategory  *approval.SampleSubtype `json:"subcategory,omitempty"`
	Description  *string                 `json:"description,omitempty"`
	UploadedBy   int64                   `json:"uploaded_by"`
	UploaderName string                  `json:"uploader_name"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// ListFilter narrows document listings of one order.
type ListFilter struct {
	OrderID  int64
	Category *Category
}
