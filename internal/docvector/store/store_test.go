package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kart-io/docvector/internal/docvector/store"
	"github.com/kart-io/docvector/internal/docvector/store/storetest"
	"github.com/kart-io/docvector/internal/model"
	errs "github.com/kart-io/docvector/pkg/errors"
)

func newDocument(t *testing.T, f store.Factory, org string) *model.Document {
	t.Helper()
	doc := &model.Document{OrganizationID: org, Title: "用户手册", Filename: "manual.pdf"}
	require.NoError(t, f.Documents().Create(context.Background(), doc))
	return doc
}

func newChunks(contents ...string) []*model.Chunk {
	out := make([]*model.Chunk, 0, len(contents))
	for _, c := range contents {
		chunk := &model.Chunk{
			Content:    c,
			TokenCount: len(c) / 4,
			Metadata:   datatypes.NewJSONType(model.ChunkMetadata{ChunkType: model.ChunkTypeParagraph, Length: len(c)}),
		}
		chunk.SetVector([]float32{1, 0})
		out = append(out, chunk)
	}
	return out
}

func contents(chunks []*model.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestDocumentCRUD(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)

	doc := newDocument(t, f, "org-a")
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.DocumentStatusUploaded, doc.Status)

	got, err := f.Documents().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "用户手册", got.Title)

	_, err = f.Documents().Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	count := 3
	now := time.Now().UTC()
	require.NoError(t, f.Documents().UpdateStatus(ctx, doc.ID, store.StatusUpdate{
		Status:      model.DocumentStatusCompleted,
		ChunkCount:  &count,
		ProcessedAt: &now,
	}))
	got, err = f.Documents().Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusCompleted, got.Status)
	assert.Equal(t, 3, got.ChunkCount)
	assert.NotNil(t, got.ProcessedAt)

	err = f.Documents().UpdateStatus(ctx, "missing", store.StatusUpdate{Status: model.DocumentStatusFailed})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocumentList(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)

	for i := 0; i < 3; i++ {
		newDocument(t, f, "org-a")
	}
	newDocument(t, f, "org-b")

	total, docs, err := f.Documents().List(ctx, store.ListOptions{OrganizationID: "org-a", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, docs, 2)

	total, _, err = f.Documents().List(ctx, store.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
}

func TestDocumentDeleteRemovesChunks(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	_, err := f.Chunks().ReplaceChunks(ctx, doc.ID, newChunks("a", "b"), store.ReplaceOptions{})
	require.NoError(t, err)

	require.NoError(t, f.Documents().Delete(ctx, doc.ID))
	n, err := f.Chunks().CountByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, f.Documents().Delete(ctx, doc.ID), store.ErrNotFound)
}

func TestReplaceChunksOverwrites(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	res, err := f.Chunks().ReplaceChunks(ctx, doc.ID, newChunks("a", "b", "c"), store.ReplaceOptions{})
	require.NoError(t, err)
	assert.Len(t, res.Stored, 3)
	assert.Empty(t, res.Failed)

	_, err = f.Chunks().ReplaceChunks(ctx, doc.ID, newChunks("x", "y"), store.ReplaceOptions{})
	require.NoError(t, err)

	stored, err := f.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, contents(stored))
	for i, c := range stored {
		assert.Equal(t, i, c.ChunkIndex)
		assert.True(t, c.Embedded())
		assert.Equal(t, model.ChunkTypeParagraph, c.Metadata.Data().ChunkType)
	}
}

func TestReplaceChunksNullEmbedding(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	in := newChunks("a", "b")
	in[1].SetVector(nil)
	_, err := f.Chunks().ReplaceChunks(ctx, doc.ID, in, store.ReplaceOptions{TolerateFailures: true})
	require.NoError(t, err)

	stored, err := f.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[0].Embedded())
	assert.False(t, stored[1].Embedded())
}

func TestReplaceChunksSkipRenumbers(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	in := newChunks("a", "dup", "c")
	in[0].ID = "11111111-1111-1111-1111-111111111111"
	in[1].ID = in[0].ID

	res, err := f.Chunks().ReplaceChunks(ctx, doc.ID, in, store.ReplaceOptions{TolerateFailures: true})
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed, 1)
	assert.Equal(t, []string{"a", "c"}, contents(res.Stored))

	stored, err := f.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, contents(stored))
	assert.Equal(t, 0, stored[0].ChunkIndex)
	assert.Equal(t, 1, stored[1].ChunkIndex)
}

func TestReplaceChunksAbortKeepsPriorSet(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	_, err := f.Chunks().ReplaceChunks(ctx, doc.ID, newChunks("old-1", "old-2"), store.ReplaceOptions{})
	require.NoError(t, err)

	in := newChunks("new-1", "new-2")
	in[0].ID = "22222222-2222-2222-2222-222222222222"
	in[1].ID = in[0].ID

	res, err := f.Chunks().ReplaceChunks(ctx, doc.ID, in, store.ReplaceOptions{})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, errs.ErrStorageFailure))

	stored, err := f.Chunks().ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1", "old-2"}, contents(stored))
}

func TestDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	f, _ := storetest.NewFactory(t)
	doc := newDocument(t, f, "org-a")

	_, err := f.Chunks().ReplaceChunks(ctx, doc.ID, newChunks("a", "b"), store.ReplaceOptions{})
	require.NoError(t, err)

	n, err := f.Chunks().DeleteByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSearchStatement(t *testing.T) {
	db := storetest.NewDB(t)
	dry := db.Session(&gorm.Session{DryRun: true})

	stmt := store.SearchStatementForTest(dry, store.SearchQuery{
		Vector:         []float32{0.6, 0.8},
		K:              5,
		Threshold:      0.7,
		OrganizationID: "org-a",
		DocumentType:   "manual",
	})
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "1 - (c.embedding <=> ?) AS similarity_score")
	assert.Contains(t, sql, "JOIN documents d ON d.id = c.document_id")
	assert.Contains(t, sql, "c.embedding IS NOT NULL")
	assert.Contains(t, sql, "1 - (c.embedding <=> ?) >= ?")
	assert.Contains(t, sql, "d.organization_id = ?")
	assert.Contains(t, sql, "d.document_type = ?")
	assert.NotContains(t, sql, "d.product_id")
	assert.Contains(t, sql, "ORDER BY similarity_score DESC")
	assert.Contains(t, sql, "LIMIT")

	assert.Contains(t, stmt.Vars, 0.7)
	assert.Contains(t, stmt.Vars, "org-a")
}
