package server

import (
	"errors"
	"net/http"

	coreactor "github.com/berfenger/gridpoll2mqtt/internal/core/actor"
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/events"
	"github.com/berfenger/gridpoll2mqtt/internal/core/integration"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type deviceView struct {
	Name             string `json:"name"`
	Manufacturer     string `json:"manufacturer,omitempty"`
	Model            string `json:"model,omitempty"`
	FirmwareVersion  string `json:"firmware_version,omitempty"`
	ConfigurationURL string `json:"configuration_url,omitempty"`
}

type sensorView struct {
	Id                string     `json:"id"`
	UniqueId          string     `json:"unique_id"`
	Key               string     `json:"key"`
	Name              string     `json:"name"`
	Coordinator       string     `json:"coordinator"`
	Service           string     `json:"service"`
	Value             *string    `json:"value"`
	Available         bool       `json:"available"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Device            deviceView `json:"device"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = goccyJSONSerializer{}
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/integrations", s.IntegrationsHandler)
	api.GET("/integrations/:name/diagnostics", s.DiagnosticsHandler)
	api.GET("/integrations/:name/sensors", s.SensorsHandler)
	api.POST("/integrations/:name/refresh", s.RefreshHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, s.askTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) IntegrationsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, coreactor.GetIntegrationsRequest{}, s.askTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(coreactor.GetIntegrationsResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, response.Integrations)
}

func (s *Server) DiagnosticsHandler(c echo.Context) error {
	in, err := s.loadedIntegration(c.Param("name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, in.Diagnostics())
}

func (s *Server) SensorsHandler(c echo.Context) error {
	in, err := s.loadedIntegration(c.Param("name"))
	if err != nil {
		return err
	}
	projections := in.Projections()
	out := make([]sensorView, 0, len(projections))
	for _, p := range projections {
		rule := p.Rule()
		meta := in.DeviceInfo(p)
		view := sensorView{
			Id:                events.SensorId(in, p),
			UniqueId:          p.UniqueKey(),
			Key:               p.Key(),
			Name:              rule.Name,
			Coordinator:       p.Coordinator(),
			Service:           p.Service(),
			Available:         p.IsAvailable(),
			UnitOfMeasurement: rule.UnitOfMeasurement,
			DeviceClass:       rule.DeviceClass,
			StateClass:        rule.StateClass,
			Device: deviceView{
				Name:             meta.Name,
				Manufacturer:     meta.Manufacturer,
				Model:            meta.Model,
				FirmwareVersion:  meta.FirmwareVersion,
				ConfigurationURL: meta.ConfigurationURL,
			},
		}
		if value := p.CurrentValue(); value.Known() {
			rendered := value.String()
			view.Value = &rendered
		}
		out = append(out, view)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) RefreshHandler(c echo.Context) error {
	name := c.Param("name")
	res, err := s.rootContext.RequestFuture(s.masterActor, coreactor.RefreshIntegrationRequest{Name: name}, s.askTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(coreactor.RefreshIntegrationResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if err := toHTTPError(response.GetResponseError()); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}

// loadedIntegration asks the master for a live integration.
func (s *Server) loadedIntegration(name string) (*integration.Integration, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, coreactor.GetIntegrationRequest{Name: name}, s.askTimeout).Result()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(coreactor.GetIntegrationResponse)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if err := toHTTPError(response.GetResponseError()); err != nil {
		return nil, err
	}
	if response.Integration == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "integration "+name+" is "+response.Status.State)
	}
	return response.Integration, nil
}

func toHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, coreactor.ErrIntegrationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, coreactor.ErrIntegrationNotLoaded):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
