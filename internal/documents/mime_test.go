package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfHead = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
)

func TestDetectTypeAcceptsAllowList(t *testing.T) {
	got, err := DetectType(pngHead, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", got)

	got, err = DetectType(pdfHead, "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got, "sniffed type wins over the declared one")

	got, err = DetectType([]byte("style,color,qty\nST-1,Red,100\n"), "text/csv; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", got)

	got, err = DetectType([]byte("just some notes"), "")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", got)
}

func TestDetectTypeRejects(t *testing.T) {
	_, err := DetectType([]byte("<!DOCTYPE html><html><body>hi</body></html>"), "text/html")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = DetectType([]byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00"), "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedType, "declared type cannot launder a binary")

	_, err = DetectType(nil, "image/png")
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestCategoryAndSubcategory(t *testing.T) {
	c, err := ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, c)

	c, err = ParseCategory("Test_Report")
	require.NoError(t, err)
	assert.Equal(t, CategoryTestReport, c)

	_, err = ParseCategory("invoice")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	sub, err := ParseSubcategory(CategorySample, "strikeOff")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "strikeOff", string(*sub))

	sub, err = ParseSubcategory(CategorySample, "")
	require.NoError(t, err)
	assert.Nil(t, sub)

	_, err = ParseSubcategory(CategoryLC, "labDip")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	_, err = ParseSubcategory(CategorySample, "fitSample")
	assert.ErrorIs(t, err, ErrInvalidCategory)
}

func TestAllowedTypesSorted(t *testing.T) {
	types := AllowedTypes()
	assert.True(t, IsAllowed("application/pdf"))
	assert.True(t, IsAllowed("text/plain; charset=utf-8"))
	assert.False(t, IsAllowed("text/html"))
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1], types[i])
	}
	assert.Equal(t, 10485760, MaxFileSize)
}
