package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/fabricflow/internal/app"
	_ "github.com/odyssey-erp/fabricflow/internal/testing/guard"
)

func TestMainReturnsInTestMode(t *testing.T) {
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
