package orders

import (
	"fmt"

	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
)

var (
	ErrNotFound        = fmt.Errorf("order %w", httpx.ErrNotFound)
	ErrLineNotFound    = fmt.Errorf("order line %w", httpx.ErrNotFound)
	ErrInvalidStatus   = fmt.Errorf("invalid status transition: %w", httpx.ErrConflict)
	ErrValidation      = fmt.Errorf("order %w", httpx.ErrValidation)
	ErrDuplicateNumber = fmt.Errorf("order number already exists: %w", httpx.ErrDuplicate)
)
