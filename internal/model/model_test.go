package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentBeforeCreate(t *testing.T) {
	d := &Document{Title: "手册"}
	require.NoError(t, d.BeforeCreate(nil))
	_, err := uuid.Parse(d.ID)
	assert.NoError(t, err)
	assert.Equal(t, DocumentStatusUploaded, d.Status)

	kept := &Document{ID: "fixed", Status: DocumentStatusCompleted}
	require.NoError(t, kept.BeforeCreate(nil))
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, DocumentStatusCompleted, kept.Status)
}

func TestDocumentVisibleTo(t *testing.T) {
	d := &Document{OrganizationID: "org-a"}
	assert.True(t, d.VisibleTo(""))
	assert.True(t, d.VisibleTo("org-a"))
	assert.False(t, d.VisibleTo("org-b"))
}

func TestChunkVector(t *testing.T) {
	c := &Chunk{}
	assert.False(t, c.Embedded())

	c.SetVector([]float32{0.6, 0.8})
	require.True(t, c.Embedded())
	assert.Equal(t, []float32{0.6, 0.8}, c.Embedding.Slice())

	c.SetVector(nil)
	assert.False(t, c.Embedded())
}
