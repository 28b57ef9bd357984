package session

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/errors"
	"go.lsp.dev/protocol"
)

func TestSessionRepository(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	t.Run("should Set and Get successfully", func(t *testing.T) {
		id := uuid.Must(uuid.NewV4())
		repository := New(testScope)

		err := repository.Set(context.Background(), &entity.Session{UUID: id})
		require.NoError(t, err)
		val, err := repository.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, val.UUID)
	})

	t.Run("should fail to get something that was not Set", func(t *testing.T) {
		repository := New(testScope)

		id := uuid.Must(uuid.NewV4())
		_, err := repository.Get(context.Background(), id)
		var nf *errors.SessionNotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, id, nf.UUID)
	})

	t.Run("should reject nil session", func(t *testing.T) {
		assert.Error(t, New(testScope).Set(context.Background(), nil))
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		id := uuid.Must(uuid.NewV4())
		repository := New(testScope)
		require.NoError(t, repository.Set(context.Background(), &entity.Session{UUID: id}))

		s, err := repository.Get(context.Background(), id)
		require.NoError(t, err)
		s.InitializeParams = &protocol.InitializeParams{Locale: "en"}

		again, err := repository.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Nil(t, again.InitializeParams)
	})
}

func TestGetFromContext(t *testing.T) {
	testScope := tally.NewTestScope("testing", make(map[string]string, 0))
	t.Run("should get when uuid is in context", func(t *testing.T) {
		id := uuid.Must(uuid.NewV4())
		repository := New(testScope)
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
		require.NoError(t, repository.Set(ctx, &entity.Session{UUID: id}))

		val, err := repository.GetFromContext(ctx)
		assert.NoError(t, err)
		assert.Equal(t, id, val.UUID)
	})

	t.Run("should fail when uuid is missing from context", func(t *testing.T) {
		_, err := New(testScope).GetFromContext(context.Background())
		var noSession *errors.NoSessionFoundError
		assert.ErrorAs(t, err, &noSession)
	})

	t.Run("should fail when context session is not stored", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, uuid.Must(uuid.NewV4()))
		_, err := New(testScope).GetFromContext(ctx)
		assert.Error(t, err)
	})
}

func TestUpdate(t *testing.T) {
	repository := New(tally.NoopScope)
	id := uuid.Must(uuid.NewV4())
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
	require.NoError(t, repository.Set(ctx, &entity.Session{UUID: id}))

	t.Run("applies changes", func(t *testing.T) {
		require.NoError(t, repository.Update(ctx, func(s *entity.Session) {
			s.InitializeParams = &protocol.InitializeParams{Locale: "fr"}
		}))
		s, err := repository.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "fr", s.InitializeParams.Locale)
	})

	t.Run("id is fixed", func(t *testing.T) {
		err := repository.Update(ctx, func(s *entity.Session) {
			s.UUID = uuid.Must(uuid.NewV4())
		})
		assert.ErrorContains(t, err, "cannot change its id")
		_, err = repository.Get(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("unknown session", func(t *testing.T) {
		other := context.WithValue(context.Background(), entity.SessionContextKey, uuid.Must(uuid.NewV4()))
		err := repository.Update(other, func(*entity.Session) { t.Fatal("called for unknown session") })
		var nf *errors.SessionNotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("no session in context", func(t *testing.T) {
		var noSession *errors.NoSessionFoundError
		assert.ErrorAs(t, repository.Update(context.Background(), func(*entity.Session) {}), &noSession)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	testScope := tally.NewTestScope("", nil)
	repository := New(testScope)

	session1 := &entity.Session{UUID: uuid.Must(uuid.NewV4())}
	session2 := &entity.Session{UUID: uuid.Must(uuid.NewV4())}

	require.NoError(t, repository.Set(ctx, session1))
	require.NoError(t, repository.Set(ctx, session2))
	assert.Equal(t, float64(2), testScope.Snapshot().Gauges()["active_connections+"].Value())

	// Multiple deletions return no error.
	assert.NoError(t, repository.Delete(ctx, session2.UUID))
	assert.NoError(t, repository.Delete(ctx, session2.UUID))
	_, err := repository.Get(ctx, session2.UUID)
	assert.Error(t, err)

	result, err := repository.Get(ctx, session1.UUID)
	require.NoError(t, err)
	assert.Equal(t, session1, result)
	assert.Equal(t, float64(1), testScope.Snapshot().Gauges()["active_connections+"].Value())
}
