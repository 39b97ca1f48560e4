package serving

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/errors"
	"github.com/gumutzkn/MLOPS-PROJECT-1/pkg/log"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var (
	ErrReloadFailed = echo.NewHTTPError(http.StatusInternalServerError, "model reload failed")
	ErrBadPayload   = echo.NewHTTPError(http.StatusBadRequest, "request body must be a form or a JSON object")
)

// PredictionResponse is the JSON body of /api/predict.
type PredictionResponse struct {
	Prediction  *int   `json:"prediction,omitempty"`
	Description string `json:"description,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HealthResponse is the JSON body of /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

type pageData struct {
	Fields []formField
	Values map[string]string
	Result *Result
}

// Server exposes a Service over HTTP.
type Server struct {
	e      *echo.Echo
	svc    *Service
	logger log.Logger
}

func NewServer(svc *Service, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetLoggerWithName("http")
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{e: e, svc: svc, logger: logger}

	e.Use(s.recoverMiddleware, s.loggingMiddleware)

	e.GET("/", s.getIndex)
	e.POST("/", s.postIndex)
	e.POST("/api/predict", s.postPredict)
	e.GET("/healthz", s.getHealth)
	e.POST("/admin/reload", s.postReload)
	return s
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("Listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) getIndex(c echo.Context) error {
	return s.render(c, url.Values{}, nil)
}

func (s *Server) postIndex(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return ErrBadPayload
	}
	res := s.svc.Predict(form)
	return s.render(c, form, &res)
}

func (s *Server) render(c echo.Context, form url.Values, res *Result) error {
	values := make(map[string]string, len(formFields))
	for _, f := range formFields {
		values[f.Name] = form.Get(f.Name)
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return indexTemplate.Execute(c.Response(), pageData{Fields: formFields, Values: values, Result: res})
}

func (s *Server) postPredict(c echo.Context) error {
	form, err := requestValues(c)
	if err != nil {
		return ErrBadPayload
	}
	res := s.svc.Predict(form)
	switch {
	case res.OK:
		label := res.Label
		return c.JSON(http.StatusOK, &PredictionResponse{Prediction: &label, Description: res.Description()})
	case res.IsNotLoaded():
		return c.JSON(http.StatusServiceUnavailable, &PredictionResponse{Error: res.Error})
	default:
		return c.JSON(http.StatusBadRequest, &PredictionResponse{Error: res.Error})
	}
}

// requestValues accepts a JSON object or form encoded fields.
func requestValues(c echo.Context) (url.Values, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return c.FormParams()
	}
	var body map[string]interface{}
	if err := c.Bind(&body); err != nil {
		return nil, err
	}
	values := make(url.Values, len(body))
	for k, v := range body {
		values.Set(k, fmt.Sprint(v))
	}
	return values, nil
}

func (s *Server) getHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{Status: "ok", ModelLoaded: s.svc.Loaded()})
}

func (s *Server) postReload(c echo.Context) error {
	if err := s.svc.Reload(c.Request().Context()); err != nil {
		return ErrReloadFailed
	}
	return c.JSON(http.StatusOK, &HealthResponse{Status: "reloaded", ModelLoaded: s.svc.Loaded()})
}

func (s *Server) loggingMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("Request served",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			log.DurationMsKey, time.Since(start).Milliseconds(),
		)
		return nil
	}
}

func (s *Server) recoverMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				perr := errors.NewPanicError(c.Path(), r)
				s.logger.Error("Handler panicked", perr)
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
			}
		}()
		return next(c)
	}
}
