package relay

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/lumichat/rendezvous/domain"
)

// BasePath is where the rendezvous channels are mounted.
const BasePath = "/_rendezvous"

const defaultMaxPayloadBytes = 10 * 1024

// API struct to hold dependencies.
type API struct {
	store      Store
	ttl        time.Duration
	maxPayload int64
}

// NewAPI initializes the relay API.
func NewAPI(store Store, ttl time.Duration, maxPayload int64) *API {
	if maxPayload <= 0 {
		maxPayload = defaultMaxPayloadBytes
	}
	return &API{store: store, ttl: ttl, maxPayload: maxPayload}
}

// RegisterRoutes registers the relay routes.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.POST(BasePath, a.CreateHandler)
	e.GET(BasePath+"/:id", a.GetHandler)
	e.PUT(BasePath+"/:id", a.UpdateHandler)
	e.DELETE(BasePath+"/:id", a.DeleteHandler)
}

// CreateHandler allocates a channel. The optional request body becomes the
// initial payload. Responds 201 with Location, ETag, and Expires headers.
func (a *API) CreateHandler(c echo.Context) error {
	payload, err := a.readPayload(c)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	ch := &domain.Channel{
		ID:          uuid.NewString(),
		Payload:     payload,
		ContentType: contentTypeOf(c),
		Sequence:    1,
		CreatedAt:   now,
		ExpiresAt:   now.Add(a.ttl),
	}

	if err := a.store.Create(c.Request().Context(), ch); err != nil {
		log.Error().Err(err).Msg("Failed to create rendezvous channel")
		return c.NoContent(http.StatusInternalServerError)
	}

	h := c.Response().Header()
	h.Set("Location", fmt.Sprintf("%s/%s", BasePath, ch.ID))
	h.Set("ETag", etag(ch.Sequence))
	h.Set("Expires", ch.ExpiresAt.Format(http.TimeFormat))
	return c.NoContent(http.StatusCreated)
}

// GetHandler returns the current payload. With If-None-Match matching the
// current ETag it responds 304, which is what the devices long-poll on.
func (a *API) GetHandler(c echo.Context) error {
	ch, err := a.lookup(c)
	if err != nil {
		return err
	}

	h := c.Response().Header()
	h.Set("ETag", etag(ch.Sequence))
	h.Set("Expires", ch.ExpiresAt.Format(http.TimeFormat))

	if c.Request().Header.Get("If-None-Match") == etag(ch.Sequence) {
		return c.NoContent(http.StatusNotModified)
	}

	contentType := ch.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, ch.Payload)
}

// UpdateHandler replaces the payload. If-Match must carry the last seen
// ETag; a mismatch responds 412 so a racing writer notices.
func (a *API) UpdateHandler(c echo.Context) error {
	ch, err := a.lookup(c)
	if err != nil {
		return err
	}

	ifMatch := c.Request().Header.Get("If-Match")
	if ifMatch != "" && ifMatch != etag(ch.Sequence) {
		return c.NoContent(http.StatusPreconditionFailed)
	}

	payload, err := a.readPayload(c)
	if err != nil {
		return err
	}

	updated := &domain.Channel{
		ID:          ch.ID,
		Payload:     payload,
		ContentType: contentTypeOf(c),
		Sequence:    ch.Sequence + 1,
		CreatedAt:   ch.CreatedAt,
		ExpiresAt:   ch.ExpiresAt,
	}

	switch err := a.store.Update(c.Request().Context(), updated, ch.Sequence); {
	case errors.Is(err, ErrNotFound):
		return c.NoContent(http.StatusNotFound)
	case errors.Is(err, ErrConflict):
		return c.NoContent(http.StatusPreconditionFailed)
	case err != nil:
		log.Error().Err(err).Str("channel_id", ch.ID).Msg("Failed to update rendezvous channel")
		return c.NoContent(http.StatusInternalServerError)
	}

	h := c.Response().Header()
	h.Set("ETag", etag(updated.Sequence))
	h.Set("Expires", updated.ExpiresAt.Format(http.TimeFormat))
	return c.NoContent(http.StatusAccepted)
}

// DeleteHandler tears a channel down.
func (a *API) DeleteHandler(c echo.Context) error {
	if err := a.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		log.Error().Err(err).Msg("Failed to delete rendezvous channel")
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// lookup loads a live channel or returns an echo.HTTPError for the handler
// to bubble up.
func (a *API) lookup(c echo.Context) (*domain.Channel, error) {
	ch, err := a.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return nil, echo.NewHTTPError(http.StatusNotFound)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load rendezvous channel")
		return nil, echo.NewHTTPError(http.StatusInternalServerError)
	}
	if ch.Expired(time.Now().UTC()) {
		_ = a.store.Delete(c.Request().Context(), ch.ID)
		return nil, echo.NewHTTPError(http.StatusGone)
	}
	return ch, nil
}

func (a *API) readPayload(c echo.Context) ([]byte, error) {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, a.maxPayload+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest)
	}
	if int64(len(payload)) > a.maxPayload {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge)
	}
	return payload, nil
}

func contentTypeOf(c echo.Context) string {
	return c.Request().Header.Get(echo.HeaderContentType)
}

func etag(sequence uint64) string {
	return strconv.Quote(strconv.FormatUint(sequence, 10))
}
