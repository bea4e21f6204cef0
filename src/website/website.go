package website

import (
	"context"
	"errors"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"git.handmade.network/hmn/boardmod/src/appeals"
	"git.handmade.network/hmn/boardmod/src/auditlog"
	"git.handmade.network/hmn/boardmod/src/auth"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/config"
	"git.handmade.network/hmn/boardmod/src/db"
	"git.handmade.network/hmn/boardmod/src/enforcement"
	"git.handmade.network/hmn/boardmod/src/geo"
	"git.handmade.network/hmn/boardmod/src/jobs"
	"git.handmade.network/hmn/boardmod/src/logging"
	"git.handmade.network/hmn/boardmod/src/notify"
	"git.handmade.network/hmn/boardmod/src/rangebans"
	"github.com/spf13/cobra"
)

var WebsiteCommand = &cobra.Command{
	Use:   "boardmod",
	Short: "Run the board moderation server",
	Run: func(cmd *cobra.Command, args []string) {
		defer logging.LogPanics(nil)
		logging.Info().Msg("Hello, boardmod!")

		var wg sync.WaitGroup

		conn := db.NewConnPool()
		defer conn.Close()
		if err := db.WaitForPool(context.Background(), conn, 10); err != nil {
			logging.Fatal().Err(err).Msg("could not reach the database")
		}

		geoResolver, err := geo.Open(config.Config.GeoIP.CountryDBPath, config.Config.GeoIP.ASNDBPath)
		if err != nil {
			logging.Warn().Err(err).Msg("GeoIP databases unavailable; country and ASN rangebans will not match")
			geoResolver, _ = geo.Open("", "")
		}
		defer geoResolver.Close()

		var notifier notify.Notifier = notify.Nop{}
		if config.Config.Nats.URL != "" {
			nc, err := notify.ConnectNATS(context.Background(), config.Config.Nats.URL, config.Config.Nats.SubjectPrefix, 10)
			if err != nil {
				logging.Error().Err(err).Msg("failed to connect to NATS; moderation events will not be published")
			} else {
				defer nc.Close()
				notifier = nc
			}
		}

		auditLog := auditlog.New(conn)
		banStore := bans.NewStore(conn, auditLog, notifier)
		rangebanStore := rangebans.NewStore(conn, notifier)
		services := &Services{
			Conn:      conn,
			Bans:      banStore,
			Rangebans: rangebanStore,
			Audit:     auditLog,
			Enforcer:  enforcement.New(banStore, rangebanStore, geoResolver),
			Appeals:   appeals.New(banStore),
		}

		// Start background jobs
		wg.Add(1)
		backgroundJobs := jobs.Jobs{
			auth.PeriodicallyDeleteExpiredSessions(conn),
		}
		if config.Config.Audit.RetentionDays > 0 {
			backgroundJobs = append(backgroundJobs, auditlog.PeriodicallyCleanupOldActions(
				auditLog,
				config.Config.Audit.RetentionDays,
				config.Config.Audit.CleanupInterval,
			))
		}

		// Create HTTP server
		wg.Add(1)
		server := http.Server{
			Addr:    config.Config.Addr,
			Handler: NewWebsiteRoutes(services),
		}
		go func() {
			logging.Info().Str("addr", config.Config.Addr).Msg("Serving the API")
			serverErr := server.ListenAndServe()
			if !errors.Is(serverErr, http.ErrServerClosed) {
				logging.Error().Err(serverErr).Msg("Server shut down unexpectedly")
			}
			// The wg.Done() happens in the shutdown logic below.
		}()

		// Start up the private HTTP server for pprof. Because it uses the default
		// mux, and we import pprof, it will automatically have all the routes.
		go func() {
			// We don't bother to gracefully shut this down.
			log.Println(http.ListenAndServe(config.Config.PrivateAddr, nil))
		}()

		// Wait for SIGINT in the background and trigger graceful shutdown
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-signals // First signal (start shutdown)
			logging.Info().Msg("Shutting down")

			const timeout = 10 * time.Second

			go func() {
				logging.Info().Msg("Shutting down background jobs...")
				unfinished := backgroundJobs.CancelAndWait(timeout)
				if len(unfinished) == 0 {
					logging.Info().Msg("Background jobs closed gracefully")
				} else {
					logging.Warn().Strs("Unfinished", unfinished).Msg("Background jobs did not finish by the deadline")
				}
				wg.Done()
			}()

			// Gracefully shut down the HTTP server
			go func() {
				timeoutCtx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				err := server.Shutdown(timeoutCtx)
				if err != nil {
					logging.Warn().Err(err).Msg("Server did not shut down gracefully")
				}
				wg.Done()
			}()

			<-signals // Second signal (force quit)
			logging.Warn().Strs("Unfinished background jobs", backgroundJobs.ListUnfinished()).Msg("Forcibly killed the server")
			os.Exit(1)
		}()

		// Wait for all of the above to finish, then exit
		wg.Wait()
	},
}
