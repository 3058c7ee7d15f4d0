package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	"VolGuard/internal/services/bars"
	xhttp "VolGuard/pkg/http"
	applogger "VolGuard/pkg/logger"
)

// VolatilityService is the part of the volatility use case the API serves.
type VolatilityService interface {
	Latest(ctx context.Context, instrument string) (*models.VolatilityRecord, error)
	Estimate(ctx context.Context, series, benchmark []models.PriceBar, sourceRef string) (models.VolatilityRecord, error)
}

// AssessmentService evaluates a client without side effects.
type AssessmentService interface {
	Assess(ctx context.Context, clientID string) (models.PortfolioRiskAssessment, error)
}

// VolatilityHandler serves volatility records, ad-hoc estimates and client
// assessments over Echo.
type VolatilityHandler struct {
	logger  *applogger.Logger
	vols    VolatilityService
	assess  AssessmentService
	clients domrepo.ClientWriter
}

func NewVolatilityHandler(logger *applogger.Logger, vols VolatilityService, assess AssessmentService, clients domrepo.ClientWriter) *VolatilityHandler {
	return &VolatilityHandler{logger: logger, vols: vols, assess: assess, clients: clients}
}

func (h *VolatilityHandler) RegisterRoutes(_ *echo.Echo, api *echo.Group) {
	g := api.Group("/api")
	g.GET("/volatility/:instrument", h.Latest)
	g.POST("/volatility/estimate", h.Estimate)
	g.GET("/clients/:id/assessment", h.Assessment)
	if h.clients != nil {
		g.PUT("/clients/:id", h.UpsertClient)
	}
}

func (h *VolatilityHandler) Latest(c echo.Context) error {
	req := &models.LatestVolatilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rec, err := h.vols.Latest(c.Request().Context(), req.Instrument)
	if err != nil {
		return h.fail(c, "latest volatility", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, rec)
}

func (h *VolatilityHandler) Estimate(c echo.Context) error {
	req := &models.EstimateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	series, err := bars.FromInputs(req.Bars)
	if err != nil {
		return h.fail(c, "estimate", err)
	}
	var benchmark []models.PriceBar
	if len(req.Benchmark) > 0 {
		if benchmark, err = bars.FromInputs(req.Benchmark); err != nil {
			return h.fail(c, "estimate", err)
		}
	}
	rec, err := h.vols.Estimate(c.Request().Context(), series, benchmark, req.SourceReference)
	if err != nil {
		return h.fail(c, "estimate", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *VolatilityHandler) Assessment(c echo.Context) error {
	req := &models.AssessmentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	a, err := h.assess.Assess(c.Request().Context(), req.ClientID)
	if err != nil {
		return h.fail(c, "assessment", err)
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *VolatilityHandler) UpsertClient(c echo.Context) error {
	req := &models.UpsertClientRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p := models.ClientProfile{
		ClientID:            req.ClientID,
		Name:                strings.TrimSpace(req.Name),
		ContactAddress:      strings.TrimSpace(req.ContactAddress),
		TargetVolatility:    req.TargetVolatility,
		VolatilityTolerance: req.VolatilityTolerance,
	}
	seen := make(map[string]struct{}, len(req.Holdings))
	for _, in := range req.Holdings {
		inst := bars.SanitizeInstrument(in.Instrument)
		if _, dup := seen[inst]; dup {
			return xhttp.BadRequestResponse(c, []*xhttp.AppError{
				xhttp.BadRequestErrorf("duplicate holding %s", inst).WithParam("instrument", inst),
			})
		}
		seen[inst] = struct{}{}
		p.Holdings = append(p.Holdings, models.Holding{Instrument: inst, Quantity: in.Quantity})
	}
	if err := h.clients.Upsert(c.Request().Context(), p); err != nil {
		return h.fail(c, "upsert client", err)
	}
	return xhttp.SuccessResponse(c, p)
}

// fail maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported as 500.
func (h *VolatilityHandler) fail(c echo.Context, op string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, models.ErrNotFound):
		appErr = xhttp.NotFoundError("not found")
	case errors.Is(err, models.ErrAggregationEmpty):
		appErr = xhttp.UnprocessableError("ERR_NO_VOLATILITY", "holdings", err.Error())
	case models.IsInsufficientData(err):
		appErr = xhttp.UnprocessableError("ERR_INSUFFICIENT_DATA", "bars", err.Error())
	case models.IsValidation(err):
		var ve *models.ValidationError
		errors.As(err, &ve)
		appErr = xhttp.NewAppError("ERR_VALIDATION", ve.Field, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrModelUnavailable):
		appErr = xhttp.UnavailableError("ERR_MODEL_UNAVAILABLE", err.Error())
	default:
		h.logger.Error(op+" usecase error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.AppErrorResponse(c, appErr.WithError(err))
}

var _ xhttp.Handler = (*VolatilityHandler)(nil)
