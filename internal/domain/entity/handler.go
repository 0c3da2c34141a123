package entity

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Stupremee/fhir/internal/platform/fhir"
	"github.com/Stupremee/fhir/internal/platform/search"
	"github.com/Stupremee/fhir/pkg/pagination"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(fhirGroup *echo.Group) {
	fhirGroup.GET("/:resource", h.List)
	fhirGroup.POST("/:resource", h.Create)
	fhirGroup.POST("/:resource/$validate", h.Validate)
	fhirGroup.GET("/:resource/:id", h.Get)
	fhirGroup.PUT("/:resource/:id", h.Update)
	fhirGroup.DELETE("/:resource/:id", h.Delete)
	fhirGroup.GET("/:resource/:id/_history", h.History)
}

type createResponse struct {
	ID uuid.UUID `json:"id"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Create stores the body as a new resource. The resource segment of the URL
// overwrites any resourceType in the body.
func (h *Handler) Create(c echo.Context) error {
	resource := c.Param("resource")
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	doc, err := decodeObject(body)
	if err != nil {
		return h.fail(c, err)
	}
	doc[fieldResourceType] = resource
	raw, err := encode(doc)
	if err != nil {
		return h.fail(c, err)
	}

	id, err := h.svc.Create(c.Request().Context(), raw)
	if err != nil {
		return h.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/fhir/"+resource+"/"+id.String())
	return c.JSON(http.StatusCreated, createResponse{ID: id})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid id"))
	}
	doc, err := h.svc.Get(c.Request().Context(), c.Param("resource"), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSONBlob(http.StatusOK, doc)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid id"))
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}

	e, err := h.svc.Update(c.Request().Context(), c.Param("resource"), id, body)
	if err != nil {
		return h.fail(c, err)
	}
	doc, err := e.Document()
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSONBlob(http.StatusOK, doc)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid id"))
	}
	if err := h.svc.Delete(c.Request().Context(), c.Param("resource"), id); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome("invalid id"))
	}
	view, err := h.svc.History(c.Request().Context(), c.Param("resource"), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// List answers GET /fhir/:resource?key=<prefix><value> with one page of
// matching documents.
func (h *Handler) List(c echo.Context) error {
	key, raw, err := searchPredicate(c)
	if err != nil {
		return h.fail(c, err)
	}
	op, value := search.ParsePrefixed(raw)

	pg := pagination.FromContext(c)
	docs, total, err := h.svc.List(c.Request().Context(), c.Param("resource"), key, op, value, pg)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(docs, total, pg))
}

func (h *Handler) Validate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, validateResponse{Valid: h.svc.IsValid(c.Param("resource"), body)})
}

// searchPredicate returns the single non-pagination query parameter.
func searchPredicate(c echo.Context) (string, string, error) {
	var key, value string
	n := 0
	for name, values := range c.QueryParams() {
		if pagination.IsReserved(name) {
			continue
		}
		n += len(values)
		if len(values) > 0 {
			key, value = name, values[0]
		}
	}
	if n != 1 {
		return "", "", ErrSearchPredicate
	}
	return key, value, nil
}

func (h *Handler) fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrMissingResourceType):
		return c.JSON(http.StatusBadRequest, fhir.RequiredFieldOutcome(fieldResourceType))
	case IsInputError(err):
		return c.JSON(http.StatusBadRequest, fhir.InvalidOutcome(err.Error()))
	case errors.Is(err, ErrInvalidDocument):
		return c.JSON(http.StatusUnprocessableEntity, fhir.ConstraintOutcome(err.Error()))
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(c.Param("resource"), c.Param("id")))
	}

	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Msg("entity operation failed")
	return c.JSON(http.StatusInternalServerError, fhir.InternalErrorOutcome())
}
