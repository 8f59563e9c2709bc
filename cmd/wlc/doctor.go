package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/forbearing/sqlwhitelist/config"
	"github.com/forbearing/sqlwhitelist/internal/dbexec"
	"github.com/forbearing/sqlwhitelist/internal/query"
	"github.com/forbearing/sqlwhitelist/internal/wire"
	"github.com/forbearing/sqlwhitelist/logger"
	"github.com/forbearing/sqlwhitelist/metrics"
	"github.com/forbearing/sqlwhitelist/runtime"
	"github.com/forbearing/sqlwhitelist/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var metricsAddr string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "exercise the database executor and session discovery against the live config",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on while doctor runs")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if err := metrics.Init(); err != nil {
		return errors.Wrap(err, "doctor: registering metrics")
	}
	srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Compiler.Warnw("doctor: metrics server stopped", "error", err)
		}
	}()
	defer srv.Close() //nolint:errcheck
	fmt.Printf("%s metrics exposed on %s/metrics\n", gray("•"), metricsAddr)

	if err := checkDatabase(cmd.Context()); err != nil {
		fmt.Printf("%s database check failed: %s\n", red("✘"), err)
	} else {
		fmt.Printf("%s database check passed\n", green("✔"))
	}

	if err := checkSession(cmd.Context()); err != nil {
		fmt.Printf("%s session check failed: %s\n", red("✘"), err)
	} else {
		fmt.Printf("%s session check passed\n", green("✔"))
	}

	return nil
}

// checkDatabase opens config.App.Database's configured backend, wraps it as
// a dbexec.Executor, and drives a literal "select 1" through the same
// DBHost.Execute path the tenant runtime uses for every query, logging any
// failure through the named runtime logger.
func checkDatabase(ctx context.Context) error {
	db, dialect, err := openConfiguredDB()
	if err != nil {
		return errors.Wrap(err, "opening configured database")
	}
	exec, err := dbexec.New(db, dialect)
	if err != nil {
		return errors.Wrap(err, "wrapping executor")
	}

	host := runtime.NewDBHost(exec, query.NewWhitelist()).WithLogger(logger.Runtime)
	slot := host.Execute(ctx, 1, 1, runtime.QueryMessage{Dynamic: true, Text: "select 1"})
	if slot.RequestIDWithFlags&wire.Reject != 0 {
		return errors.Newf("health check query rejected: %v", slot.Argument)
	}
	return nil
}

func openConfiguredDB() (*gorm.DB, dbexec.Dialect, error) {
	dsn := config.App.Database.DSN
	switch dbexec.Dialect(config.App.Database.Type) {
	case dbexec.DialectPostgres:
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		return db, dbexec.DialectPostgres, err
	case dbexec.DialectMySQL:
		db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		return db, dbexec.DialectMySQL, err
	default:
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		return db, dbexec.DialectSQLite, err
	}
}

// checkSession dials a session against config.App's discovery settings,
// exercising session.WithLogger, and closes it immediately.
func checkSession(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := session.NewFromAppConfig(dialCtx, session.WithLogger(logger.Session))
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck
	return nil
}
