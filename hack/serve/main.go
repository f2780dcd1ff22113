package main

import (
	gocontext "context"
	"errors"
	"net/http"
	"time"

	"github.com/flanksource/commons/logger"
	echov4 "github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/flanksource/hse"
	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/echo"
	"github.com/flanksource/hse/evidence"
	"github.com/flanksource/hse/job"
	"github.com/flanksource/hse/notifications"
	"github.com/flanksource/hse/shutdown"
	"github.com/flanksource/hse/telemetry"
)

var (
	listen      string
	disableJobs bool
	jwtSecret   string
)

var serve = &cobra.Command{
	Use:   "serve",
	Short: "Run the HSE API with its notification consumers and scheduled jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		shutdown.AddHookWithPriority("tracer", shutdown.PriorityCritical, telemetry.DefaultConfig.Init())

		ctx, _, err := hse.Start("hse")
		if err != nil {
			return err
		}
		shutdown.WaitForSignal()
		shutdown.AddHookWithPriority("evidence buckets", shutdown.PriorityCritical-1, evidence.CloseBuckets)

		consumers, err := notifications.NewConsumersFromConfig(api.DefaultConfig.ReadEnv())
		if err != nil {
			return err
		}
		base, cancel := gocontext.WithCancel(gocontext.Background())
		shutdown.AddHookWithPriority("notification consumers", shutdown.PriorityJobs, cancel)
		if err := consumers.Start(ctx.Wrap(base)); err != nil {
			return err
		}

		var scheduler *job.Scheduler
		if !disableJobs {
			scheduler = job.NewScheduler(job.DefaultJobs(ctx)...)
			if err := scheduler.Start(); err != nil {
				return err
			}
		}

		e := echov4.New()
		e.HideBanner = true
		actor := echo.HeaderActorResolver
		if jwtSecret != "" {
			actor = echo.BearerActorResolver([]byte(jwtSecret))
		}
		echo.RegisterRoutes(ctx, e, actor)
		echo.AddDebugHandlers(ctx, e, scheduler)
		echo.StartAgent()

		shutdown.AddHookWithPriority("http server", shutdown.PriorityIngress, func() {
			stopCtx, stop := gocontext.WithTimeout(gocontext.Background(), 10*time.Second)
			defer stop()
			if err := e.Shutdown(stopCtx); err != nil {
				logger.Errorf("failed to stop http server: %v", err)
			}
		})

		logger.Infof("Listening on %s", listen)
		if err := e.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func main() {
	hse.BindPFlags(serve.Flags())
	telemetry.BindFlags(serve.Flags(), "hse")
	serve.Flags().StringVar(&listen, "listen", ":8080", "HTTP listen address")
	serve.Flags().StringVar(&jwtSecret, "jwt-secret", "", "Resolve the acting user from HS256 bearer tokens signed with this secret instead of the X-HSE-User header")
	serve.Flags().BoolVar(&disableJobs, "disable-jobs", false, "Do not run the reminder and escalation jobs in this process")

	if err := serve.Execute(); err != nil {
		shutdown.ShutdownAndExit(1, err.Error())
	}
	shutdown.Shutdown()
}
