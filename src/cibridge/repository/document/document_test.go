package document

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/protocol"
)

func TestDocumentRepository(t *testing.T) {
	ctx := context.Background()
	scope := tally.NewTestScope("", nil)
	repository := New(scope)

	doc := protocol.TextDocumentIdentifier{URI: "file:///src/index.php"}
	_, err := repository.Get(ctx, doc)
	var nf *errors.DocumentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, doc.URI, nf.URI)

	require.NoError(t, repository.Set(ctx, protocol.TextDocumentItem{URI: doc.URI, Version: 1, Text: "<?php"}))
	require.NoError(t, repository.Set(ctx, protocol.TextDocumentItem{URI: doc.URI, Version: 2, Text: "<?php echo 1;"}))

	item, err := repository.Get(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, int32(2), item.Version)
	assert.Equal(t, "<?php echo 1;", item.Text)
	assert.Equal(t, float64(1), scope.Snapshot().Gauges()["open_documents+"].Value())

	require.NoError(t, repository.Delete(ctx, doc))
	require.NoError(t, repository.Delete(ctx, doc))
	_, err = repository.Get(ctx, doc)
	assert.Error(t, err)
	assert.Equal(t, float64(0), scope.Snapshot().Gauges()["open_documents+"].Value())
}

func TestSetRequiresURI(t *testing.T) {
	assert.Error(t, New(tally.NoopScope).Set(context.Background(), protocol.TextDocumentItem{Text: "x"}))
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	repository := New(tally.NoopScope)
	doc := protocol.TextDocumentIdentifier{URI: "file:///src/index.php"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(v int32) {
			defer wg.Done()
			assert.NoError(t, repository.Set(ctx, protocol.TextDocumentItem{URI: doc.URI, Version: v}))
		}(int32(i))
		go func() {
			defer wg.Done()
			_, _ = repository.Get(ctx, doc)
		}()
	}
	wg.Wait()

	_, err := repository.Get(ctx, doc)
	assert.NoError(t, err)
}
