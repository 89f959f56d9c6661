package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core/inspection"
)

type (
	// FormRequest moves a multi-step inspection form: "next", "back" or "touch" (with Field).
	FormRequest struct {
		State  inspection.FormState `json:"state" validate:"-"`
		Action string               `json:"action" validate:"required,oneof=next back touch"`
		Field  string               `json:"field" validate:"required_if=Action touch"`
	}

	FormResponse struct {
		State  inspection.FormState `json:"state"`
		Errors map[string]string    `json:"errors,omitempty"`
	}

	inspectionApi struct {
		svc        inspection.Service
		validate   *validator.Validate
		translator ut.Translator
	}
)

func registerInspectionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := inspectionApi{
		svc:        deps.InspectionSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	ig := g.Group("/inspections", jwt)
	ig.POST("", api.submit)
	ig.POST("/form", api.form)
	ig.GET("/pending", api.queryPending)
}

// Handlers

// submit answers 201 once the tracker stored the inspection, 202 when it was kept for a later retry.
func (api *inspectionApi) submit(ctx echo.Context) error {
	var data inspection.NewInspection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInspection")
	}

	sub, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	code := http.StatusCreated
	if sub.Pending {
		code = http.StatusAccepted
	}
	return ctx.JSON(code, sub)
}

// form applies one transition to the form state sent by the client.
// Errors of the current step come back with the state rather than as a failure.
func (api *inspectionApi) form(ctx echo.Context) error {
	var data FormRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FormRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	var res FormResponse
	switch data.Action {
	case "touch":
		res.State = data.State.Touch(data.Field)
	case "back":
		res.State = data.State.Back()
	default:
		state, err := data.State.Next(api.validate)
		if err != nil {
			fldErrs, ok := fieldErrors(err, api.translator)
			if !ok {
				return errors.Wrap(err, "validating form step")
			}
			res.Errors = fldErrs
		}
		res.State = state
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *inspectionApi) queryPending(ctx echo.Context) error {
	pending, err := api.svc.QueryPending(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying pending submissions")
	}
	return ctx.JSON(http.StatusOK, pending)
}
