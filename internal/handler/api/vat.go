package api

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/dukerupert/vies/internal/domain"
	"github.com/dukerupert/vies/internal/handler"
	"github.com/dukerupert/vies/internal/middleware"
	"github.com/dukerupert/vies/internal/telemetry"
	"github.com/dukerupert/vies/internal/vat"
	"github.com/go-playground/validator/v10"
)

// vatNumberChars is the character set the checkVatService WSDL allows in
// vatNumber. Legacy Irish numbers use + and *.
var vatNumberChars = regexp.MustCompile(`^[0-9A-Za-z+*.]+$`)

// vatParams are the path parameters of GET /api/vat/{country}/{number}.
// The shape check keeps arbitrary text out of the SOAP envelope; membership
// is decided by vat.NewQuery.
type vatParams struct {
	Country string `validate:"required,len=2,alpha"`
	Number  string `validate:"required,min=2,max=12,vatnumber"`
}

// fieldMessages maps the failing tag of each parameter to its message.
var fieldMessages = map[string]map[string]string{
	"country": {
		"required": "country is required",
		"len":      "country must be 2 letters",
		"alpha":    "country must be 2 letters",
	},
	"number": {
		"required":  "number is required",
		"min":       "number must be 2 to 12 characters",
		"max":       "number must be 2 to 12 characters",
		"vatnumber": "number may contain only letters, digits, +, * and .",
	},
}

// VATHandler serves VAT number lookups.
type VATHandler struct {
	verifier vat.Verifier
	validate *validator.Validate
	metrics  *telemetry.VIESMetrics
	logger   *slog.Logger
}

// NewVATHandler creates a new VAT lookup handler. metrics may be nil.
func NewVATHandler(verifier vat.Verifier, metrics *telemetry.VIESMetrics, logger *slog.Logger) *VATHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VATHandler{
		verifier: verifier,
		validate: newValidator(),
		metrics:  metrics,
		logger:   logger,
	}
}

// Check handles GET /api/vat/{country}/{number}
//
// Response codes:
// - 200 OK: the Record as JSON, or {} when VIES could not be reached
// - 400 Bad Request: path parameters have the wrong shape
// - 422 Unprocessable Entity: country not in the EU list, no VIES data, or
//   the number is not valid
// - 500 Internal Server Error: VIES answered with something unparseable
// - 503 Service Unavailable: VIES answered with a SOAP fault (or is down,
//   when the client is strict)
func (h *VATHandler) Check(w http.ResponseWriter, r *http.Request) {
	const op = "api.vat.check"

	params := vatParams{
		Country: r.PathValue("country"),
		Number:  r.PathValue("number"),
	}

	if err := h.validateParams(op, params); err != nil {
		h.metrics.RejectQuery("bad_request")
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	q, err := vat.NewQuery(params.Country, params.Number)
	if err != nil {
		switch {
		case errors.Is(err, vat.ErrNoDataCountry):
			h.metrics.RejectQuery("no_data_country")
		default:
			h.metrics.RejectQuery("invalid_country")
		}
		handler.ErrorResponse(w, r, domain.Op(err, op))
		return
	}

	rec, err := h.verifier.Get(r.Context(), q)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	if rec == nil {
		middleware.GetLogger(r.Context(), h.logger).Warn("VIES unreachable, returning empty result",
			"country_code", q.CountryCode(),
		)
		handler.JSONResponse(w, http.StatusOK, struct{}{})
		return
	}

	handler.JSONResponse(w, http.StatusOK, rec)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("vatnumber", func(fl validator.FieldLevel) bool {
		return vatNumberChars.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateParams returns a *domain.ValidationError listing every bad field.
func (h *VATHandler) validateParams(op string, p vatParams) error {
	err := h.validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.Internal(err, op, "failed to validate request")
	}

	var out error
	for _, fe := range fieldErrs {
		field := "country"
		if fe.StructField() == "Number" {
			field = "number"
		}
		msg, ok := fieldMessages[field][fe.Tag()]
		if !ok {
			msg = field + " is invalid"
		}
		if out == nil {
			out = domain.NewValidationError(op, field, msg)
			continue
		}
		out = domain.AddFieldError(out, field, msg)
	}
	return out
}
