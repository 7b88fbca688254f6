package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumichat/rendezvous/domain"
)

func newTestServer(t *testing.T, maxPayload int64) *echo.Echo {
	t.Helper()

	store := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	e := echo.New()
	NewAPI(store, time.Minute, maxPayload).RegisterRoutes(e)
	return e
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createChannel(t *testing.T, e *echo.Echo, payload string) (location, tag string) {
	t.Helper()
	rec := do(e, http.MethodPost, BasePath, payload,
		map[string]string{echo.HeaderContentType: echo.MIMEApplicationJSON})
	require.Equal(t, http.StatusCreated, rec.Code)
	location = rec.Header().Get("Location")
	tag = rec.Header().Get("ETag")
	require.NotEmpty(t, location)
	require.Equal(t, `"1"`, tag)
	require.NotEmpty(t, rec.Header().Get("Expires"))
	return location, tag
}

func TestRelay_CreateAndFetch(t *testing.T) {
	e := newTestServer(t, 0)

	location, tag := createChannel(t, e, `{"hello":"world"}`)

	rec := do(e, http.MethodGet, location, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"hello":"world"}`, rec.Body.String())
	assert.Equal(t, tag, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

func TestRelay_LongPollRespondsNotModified(t *testing.T) {
	e := newTestServer(t, 0)

	location, tag := createChannel(t, e, "initial")

	rec := do(e, http.MethodGet, location, "", map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRelay_UpdateBumpsETag(t *testing.T) {
	e := newTestServer(t, 0)

	location, tag := createChannel(t, e, "initial")

	rec := do(e, http.MethodPut, location, "replaced", map[string]string{"If-Match": tag})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))

	// The stale watcher wakes up with the fresh payload.
	rec = do(e, http.MethodGet, location, "", map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "replaced", rec.Body.String())
	assert.Equal(t, `"2"`, rec.Header().Get("ETag"))
}

func TestRelay_StaleWriteIsRejected(t *testing.T) {
	e := newTestServer(t, 0)

	location, tag := createChannel(t, e, "initial")

	rec := do(e, http.MethodPut, location, "first", map[string]string{"If-Match": tag})
	require.Equal(t, http.StatusAccepted, rec.Code)

	// A second writer still holding the original ETag loses the race.
	rec = do(e, http.MethodPut, location, "second", map[string]string{"If-Match": tag})
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestRelay_UnknownChannel(t *testing.T) {
	e := newTestServer(t, 0)

	rec := do(e, http.MethodGet, BasePath+"/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPut, BasePath+"/does-not-exist", "payload", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelay_Delete(t *testing.T) {
	e := newTestServer(t, 0)

	location, _ := createChannel(t, e, "initial")

	rec := do(e, http.MethodDelete, location, "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(e, http.MethodGet, location, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelay_PayloadTooLarge(t *testing.T) {
	e := newTestServer(t, 16)

	rec := do(e, http.MethodPost, BasePath, strings.Repeat("x", 17), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// expiredStore always returns a channel whose deadline already passed.
type expiredStore struct {
	deleted []string
}

func (s *expiredStore) Create(context.Context, *domain.Channel) error { return nil }

func (s *expiredStore) Get(_ context.Context, id string) (*domain.Channel, error) {
	now := time.Now().UTC()
	return &domain.Channel{
		ID:        id,
		Sequence:  1,
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-time.Minute),
	}, nil
}

func (s *expiredStore) Update(context.Context, *domain.Channel, uint64) error { return nil }

func (s *expiredStore) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestRelay_ExpiredChannelIsGone(t *testing.T) {
	store := &expiredStore{}
	e := echo.New()
	NewAPI(store, time.Minute, 0).RegisterRoutes(e)

	rec := do(e, http.MethodGet, BasePath+"/stale", "", nil)
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, []string{"stale"}, store.deleted, "expired channels are reaped on access")
}

func TestMemoryStore_SequenceConflicts(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	now := time.Now().UTC()
	ch := &domain.Channel{ID: "c1", Payload: []byte("a"), Sequence: 1, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Create(ctx, ch))

	next := &domain.Channel{ID: "c1", Payload: []byte("b"), Sequence: 2, CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, store.Update(ctx, next, 1))

	// The old sequence is no longer current.
	assert.ErrorIs(t, store.Update(ctx, next, 1), ErrConflict)

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got.Payload)
	assert.Equal(t, uint64(2), got.Sequence)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, err = store.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Update(ctx, next, 2), ErrNotFound)
}
