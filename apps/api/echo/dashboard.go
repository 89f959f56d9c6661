package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ukaguzi/core"
	"github.com/trezcool/ukaguzi/core/inspection"
	"github.com/trezcool/ukaguzi/core/visit"
)

type dashboardApi struct {
	svc inspection.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc inspection.Service) {
	api := dashboardApi{svc: svc}

	sg := g.Group("/schools/:id", jwt)
	sg.GET("/resources", api.schoolResources)
	sg.GET("/visits/quarterly", api.schoolVisits)

	cg := g.Group("/clusters/:id", jwt)
	cg.GET("/statistics", api.clusterStatistics)
	cg.GET("/visit-plan", api.visitPlan)
}

func orgUnitParam(ctx echo.Context) (string, error) {
	id := core.CleanString(ctx.Param("id"))
	if id == "" {
		return "", errHttpNotFound
	}
	return id, nil
}

// Handlers

func (api *dashboardApi) schoolResources(ctx echo.Context) error {
	id, err := orgUnitParam(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.SchoolResources(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "building resource dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *dashboardApi) schoolVisits(ctx echo.Context) error {
	id, err := orgUnitParam(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.SchoolVisits(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "building visits dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *dashboardApi) clusterStatistics(ctx echo.Context) error {
	id, err := orgUnitParam(ctx)
	if err != nil {
		return err
	}
	dash, err := api.svc.ClusterStatistics(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "building cluster statistics")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// mapView is the planner map state sent along the visit plan.
type mapView struct {
	Focus  *visit.Marker `json:"focus,omitempty"`
	Center []float64     `json:"center,omitempty"` // [longitude, latitude]

	markers []visit.Marker
}

var _ visit.Presenter = (*mapView)(nil)

func (v *mapView) OnSelect(m visit.Marker) {
	v.Focus = &m
	v.Center = []float64{m.Longitude, m.Latitude}
}

// OnRecenter centers the map on the markers.
func (v *mapView) OnRecenter() {
	v.Focus = nil
	v.Center = nil
	if len(v.markers) == 0 {
		return
	}
	var lon, lat float64
	for _, m := range v.markers {
		lon += m.Longitude
		lat += m.Latitude
	}
	n := float64(len(v.markers))
	v.Center = []float64{lon / n, lat / n}
}

// VisitPlanResponse is a visit plan with the map focused on ?school= or centered on the cluster.
type VisitPlanResponse struct {
	inspection.VisitPlan
	Map mapView `json:"map"`
}

func (api *dashboardApi) visitPlan(ctx echo.Context) error {
	id, err := orgUnitParam(ctx)
	if err != nil {
		return err
	}
	plan, err := api.svc.VisitPlan(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "building visit plan")
	}

	res := VisitPlanResponse{VisitPlan: plan, Map: mapView{markers: plan.Markers}}
	if err = visit.Select(&res.Map, plan.Markers, core.CleanString(ctx.QueryParam("school"))); err != nil {
		if errors.Cause(err) == visit.ErrNoMarker {
			return echo.NewHTTPError(http.StatusNotFound, "school not on the map")
		}
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
