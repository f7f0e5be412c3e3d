package documents

import (
	"fmt"
	"mime"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
)

var allowedTypes = map[string]struct{}{
	"image/jpeg":         {},
	"image/png":          {},
	"image/gif":          {},
	"image/webp":         {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/csv":                   {},
	"text/plain":                 {},
	"message/rfc822":             {},
	"application/vnd.ms-outlook": {},
}

// Container formats the sniffer reports when it cannot see inside the file.
// The declared type decides for these.
var containerTypes = map[string][]string{
	"application/x-ole-storage": {"application/msword", "application/vnd.ms-excel", "application/vnd.ms-outlook"},
	"application/zip": {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	},
}

// IsAllowed reports whether a media type is on the allow-list.
func IsAllowed(mediaType string) bool {
	_, ok := allowedTypes[baseType(mediaType)]
	return ok
}

// AllowedTypes returns the allow-list.
func AllowedTypes() []string {
	out := lo.Keys(allowedTypes)
	sort.Strings(out)
	return out
}

// DetectType sniffs head and checks it against the allow-list and the type
// the client declared. It returns the media type to store.
func DetectType(head []byte, declared string) (string, error) {
	if len(head) == 0 {
		return "", ErrEmptyFile
	}
	declared = baseType(declared)
	sniffed := baseType(mimetype.Detect(head).String())
	switch {
	case sniffed == "text/plain" && (declared == "text/csv" || declared == "message/rfc822"):
		// CSV and mail sniff as plain text.
		return declared, nil
	case IsAllowed(sniffed):
		return sniffed, nil
	case lo.Contains(containerTypes[sniffed], declared):
		return declared, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, sniffed)
}

func baseType(raw string) string {
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}
