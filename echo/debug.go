package echo

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/commons/properties"
	"github.com/flanksource/commons/timer"
	"github.com/google/gops/agent"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/flanksource/hse/cache"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/job"
	"github.com/flanksource/hse/postq"
)

func init() {
	// disables default handlers registered by importing net/http/pprof.
	http.DefaultServeMux = http.NewServeMux()
}

// StartAgent starts the gops diagnostics agent.
func StartAgent() {
	if err := agent.Listen(agent.Options{}); err != nil {
		logger.Errorf(err.Error())
	}
}

// RestrictToLocalhost is a middleware that restricts access to localhost
func RestrictToLocalhost(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		remoteIP := net.ParseIP(c.RealIP())
		if remoteIP == nil {
			return echo.NewHTTPError(http.StatusForbidden, "Invalid IP address")
		}

		if !remoteIP.IsLoopback() {
			return echo.NewHTTPError(http.StatusForbidden, "Access restricted to localhost")
		}

		return next(c)
	}
}

// AddDebugHandlers mounts /debug. scheduler may be nil when jobs are hosted elsewhere.
func AddDebugHandlers(ctx context.Context, e *echo.Echo, scheduler *job.Scheduler, middleware ...echo.MiddlewareFunc) {
	pprofGroup := e.Group("/debug/pprof")
	pprofGroup.Use(RestrictToLocalhost)
	pprofGroup.GET("/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	pprofGroup.GET("/cmdline*", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	pprofGroup.GET("/profile*", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	pprofGroup.GET("/symbol*", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	pprofGroup.GET("/trace*", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))

	debug := e.Group("/debug", append([]echo.MiddlewareFunc{WithContext(ctx)}, middleware...)...)

	debug.GET("/routes", func(c echo.Context) error {
		return c.JSON(http.StatusOK, e.Routes())
	})

	debug.GET("/loggers", func(c echo.Context) error {
		return c.JSON(http.StatusOK, logger.GetNamedLoggingLevels())
	})

	debug.POST("/loggers", func(c echo.Context) error {
		logName := c.Request().FormValue("logger")
		logLevel := c.Request().FormValue("level")
		if logName == "" || logLevel == "" {
			return c.String(http.StatusBadRequest, "logger name or level is missing")
		}

		currentLevel := logger.GetLogger(logName).GetLevel()
		if d := c.Request().FormValue("duration"); d != "" {
			revert, err := time.ParseDuration(d)
			if err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
			time.AfterFunc(revert, func() {
				logger.GetLogger(logName).SetLogLevel(currentLevel)
			})
		}

		logger.Infof("Setting logger %s level to %s", logName, logLevel)
		logger.GetLogger(logName).SetLogLevel(logLevel)
		return c.String(http.StatusOK, fmt.Sprintf("Changed %s from %s to %s", logName, currentLevel, logLevel))
	})

	debug.GET("/properties", Properties)
	debug.POST("/properties", UpdateProperty)
	debug.GET("/system/properties", func(c echo.Context) error {
		return c.JSON(http.StatusOK, properties.Global.GetAll())
	})

	debug.POST("/cache/clear", func(c echo.Context) error {
		ctx := c.Request().Context().(context.Context)
		ctx.ClearCache()
		if err := cache.ClearAll(ctx); err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, cache.Names())
	})

	debug.GET("/event-queue", func(c echo.Context) error {
		ctx := c.Request().Context().(context.Context)
		summary, err := postq.Summary(ctx)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, summary)
	})

	if scheduler != nil {
		debug.GET("/cron", scheduler.CronDetailsHandler())
		debug.POST("/cron/run", func(c echo.Context) error {
			name := c.Request().FormValue("name")
			j, ok := lo.Find(scheduler.Jobs, func(j *job.Job) bool { return j.Name == name })
			if !ok {
				names := lo.Map(scheduler.Jobs, func(j *job.Job, _ int) string { return j.Name })
				return c.String(http.StatusNotFound, fmt.Sprintf("job %s not found in %s", name, strings.Join(names, ", ")))
			}

			logger.Infof("Running %s now", name)
			history, err := j.Exec()
			if err != nil {
				return writeError(c, err)
			}
			return c.JSON(http.StatusCreated, history)
		})
	}

	if period := properties.Duration(0, "memory.stats"); period > 0 {
		t := timer.NewMemoryTimer()
		go func() {
			for {
				logger.GetLogger("memory").Infof("%s", t.End())
				time.Sleep(period)
			}
		}()
	}
}
