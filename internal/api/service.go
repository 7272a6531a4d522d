package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/config"
	"github.com/C4T-BuT-S4D/promobot/internal/export"
	"github.com/C4T-BuT-S4D/promobot/internal/jobs"
	"github.com/C4T-BuT-S4D/promobot/internal/ledger"
	"github.com/C4T-BuT-S4D/promobot/internal/reconcile"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Service is the admin HTTP API: the same export and reconciliation the bot
// offers to admins, for scripts and dashboards.
type Service struct {
	config   *config.Config
	ledger   *ledger.Ledger
	engine   *reconcile.Engine
	window   reconcile.Window
	exporter *export.XLSX
	db       Pinger
}

func NewService(
	cfg *config.Config,
	ledger *ledger.Ledger,
	engine *reconcile.Engine,
	window reconcile.Window,
	exporter *export.XLSX,
	db Pinger,
) *Service {
	return &Service{
		config:   cfg,
		ledger:   ledger,
		engine:   engine,
		window:   window,
		exporter: exporter,
		db:       db,
	}
}

// Register mounts the routes on e.
func (s *Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.HandleHealth())

	admin := e.Group("", s.RequireToken())
	admin.GET("/export", s.HandleExport())
	admin.POST("/reconcile", s.HandleReconcile())
}

func (s *Service) RequireToken() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			if s.config.APIToken == "" {
				return false, nil
			}
			return subtle.ConstantTimeCompare([]byte(key), []byte(s.config.APIToken)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			logrus.Debugf("rejected api request to %s: %v", c.Path(), err)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		},
	})
}

func (s *Service) HandleHealth() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			logrus.Errorf("health check failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	}
}

func (s *Service) HandleExport() echo.HandlerFunc {
	return func(c echo.Context) error {
		filter := s.ledger.CurrentMonth()
		if c.QueryParam("month") != "" || c.QueryParam("year") != "" {
			month, err := strconv.Atoi(c.QueryParam("month"))
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "month must be a number"})
			}
			year, err := strconv.Atoi(c.QueryParam("year"))
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "year must be a number"})
			}
			filter = ledger.MonthFilter{Month: time.Month(month), Year: year}
			if err := filter.Validate(); err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
			}
		}

		promos, err := s.ledger.ListAll(c.Request().Context(), &filter)
		if err != nil {
			logrus.Errorf("failed to list promos for %v: %v", filter, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list promos"})
		}
		if len(promos) == 0 {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no data for this month"})
		}

		art, err := s.exporter.Build(promos, filter.Month, filter.Year)
		if err != nil {
			logrus.Errorf("failed to build export for %v: %v", filter, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build export"})
		}

		logrus.Infof("exporting %d promos as %s over http", len(promos), art.Name)
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+art.Name+`"`)
		return c.Blob(http.StatusOK, xlsxMIME, art.Data)
	}
}

func (s *Service) HandleReconcile() echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.config.JobTimeout)
		defer cancel()

		log := logrus.WithFields(logrus.Fields{"component": "api", "remote_ip": c.RealIP()})
		summary, jobErr := jobs.Run(ctx, log, "reconcile", func(ctx context.Context) (*reconcile.Summary, error) {
			summary, err := s.engine.Run(ctx, s.window)
			if errors.Is(err, reconcile.ErrAlreadyRunning) {
				return nil, jobs.Fail(jobs.KindBusy, err)
			}
			return summary, err
		})
		switch {
		case jobErr == nil:
		case jobErr.Kind == jobs.KindBusy:
			return c.JSON(http.StatusConflict, echo.Map{"error": "reconciliation already running"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reconciliation failed", "kind": jobErr.Kind, "detail": jobErr.Detail})
		}

		resp := echo.Map{
			"window":     summary.Window.String(),
			"sequential": summary.Sequential,
			"random":     summary.Random,
		}
		if !summary.Latest.IsZero() {
			resp["latest"] = summary.Latest.In(s.window.From.Location()).Format(time.DateTime)
		}
		return c.JSON(http.StatusOK, resp)
	}
}
