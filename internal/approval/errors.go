package approval

import (
	"fmt"

	"github.com/odyssey-erp/fabricflow/internal/platform/httpx"
)

// Domain errors for approval vocabularies and maps. All of them are client
// input problems and map to 400.
var (
	// ErrInvalidApprovalType is returned when a type is not part of the vocabulary in use.
	ErrInvalidApprovalType = fmt.Errorf("invalid approval type: %w", httpx.ErrValidation)
	// ErrInvalidApprovalState is returned for states outside pending/approved/rejected.
	ErrInvalidApprovalState = fmt.Errorf("invalid approval state: %w", httpx.ErrValidation)
	// ErrInvalidSampleSubtype is returned for unknown sample document subtypes.
	ErrInvalidSampleSubtype = fmt.Errorf("invalid sample subtype: %w", httpx.ErrValidation)
	// ErrUnknownVersion is returned for vocabulary versions that are not registered.
	ErrUnknownVersion = fmt.Errorf("unknown approval vocabulary version: %w", httpx.ErrValidation)
)
