package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/tablegate/core"
	"github.com/relabs-tech/tablegate/core/backend"
	"github.com/relabs-tech/tablegate/core/csql"
	"github.com/relabs-tech/tablegate/core/logger"
	"github.com/relabs-tech/tablegate/core/notify"
	"github.com/relabs-tech/tablegate/core/schema"
)

// Service holds the configuration for this service
//
// use DB_DRIVER=postgres DB_SERVER=localhost:5432 DB_USERNAME=postgres DB_PASSWORD=docker for a local Postgres
type Service struct {
	DBDriver          string        `env:"DB_DRIVER,default=sqlserver" description:"database driver: sqlserver, postgres or sqlite3"`
	DBServer          string        `env:"DB_SERVER,default=localhost" description:"database host, optionally with port"`
	DBDatabase        string        `env:"DB_DATABASE,default=gateway" description:"database name, or file for sqlite3"`
	DBUsername        string        `env:"DB_USERNAME,default=sqlserver" description:"database user"`
	DBPassword        string        `env:"DB_PASSWORD,default=docker" description:"database password"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=16" description:"maximum number of open connections"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=4" description:"maximum number of idle connections"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m" description:"maximum lifetime of a connection"`
	QueryTimeout      time.Duration `env:"QUERY_TIMEOUT,default=30s" description:"timeout of every statement or transaction"`
	TablesConfig      string        `env:"TABLES_CONFIG,default=tables.json" description:"the table configuration file"`
	Port              int           `env:"PORT,default=5000" description:"the listen port"`
	LogLevel          string        `env:"LOG_LEVEL,default=info" description:"the log level"`
	RateLimit         int           `env:"RATE_LIMIT_PER_MINUTE,default=5" description:"requests per minute per client IP and route, 0 disables"`
	RateLimitList     int           `env:"RATE_LIMIT_LIST_PER_MINUTE,default=10" description:"requests per minute per client IP for listing a table"`
	KafkaBrokers      string        `env:"KAFKA_BROKERS" description:"comma separated Kafka brokers for change notifications"`
	KafkaTopic        string        `env:"KAFKA_TOPIC,default=table_changes" description:"Kafka topic for change notifications"`
}

func (s *Service) database() csql.Configuration {
	return csql.Configuration{
		Driver:          s.DBDriver,
		Server:          s.DBServer,
		Database:        s.DBDatabase,
		Username:        s.DBUsername,
		Password:        s.DBPassword,
		MaxOpenConns:    s.DBMaxOpenConns,
		MaxIdleConns:    s.DBMaxIdleConns,
		ConnMaxLifetime: s.DBConnMaxLifetime,
	}
}

func (s *Service) brokers() []string {
	var brokers []string
	for _, b := range strings.Split(s.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func loadService() (*Service, error) {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("cannot decode environment: %w", err)
	}
	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	logger.InitLogger(level)
	return service, nil
}

func main() {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "HTTP gateway to SQL tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCheckConfigCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		logger.Default().WithError(err).Errorln("gateway failed")
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the table routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := loadService()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, service)
		},
	}
}

func serve(ctx context.Context, service *Service) error {
	rlog := logger.Default()

	registry, err := schema.Load(service.TablesConfig)
	if err != nil {
		return err
	}
	db, err := csql.Open(ctx, service.database())
	if err != nil {
		return err
	}
	defer db.Close()

	var notifier core.Notifier = notify.Log{}
	if brokers := service.brokers(); len(brokers) > 0 {
		rlog.Infof("publishing changes to kafka topic %s on %v", service.KafkaTopic, brokers)
		notifier = notify.NewKafka(brokers, service.KafkaTopic)
	}

	router := mux.NewRouter()
	b := backend.New(&backend.Builder{
		DB:           db,
		Router:       router,
		Registry:     registry,
		Notifier:     notifier,
		QueryTimeout: service.QueryTimeout,
		RateLimits: backend.RateLimitConfiguration{
			PerMinute: service.RateLimit,
			Routes:    map[string]int{backend.RouteList: service.RateLimitList},
		},
	})
	defer b.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		rlog.Infof("listen on port :%d", service.Port)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCheckConfigCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the table configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				service, err := loadService()
				if err != nil {
					return err
				}
				path = service.TablesConfig
			}
			registry, err := schema.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			c := registry.Credentials
			columns := map[core.Operation]string{
				core.OperationRead:   c.ReadColumn,
				core.OperationCreate: c.CreateColumn,
				core.OperationEdit:   c.EditColumn,
				core.OperationDelete: c.DeleteColumn,
			}
			fmt.Fprintf(out, "credentials: %s.%s\n", c.Table, c.SecretColumn)
			for _, op := range core.Operations() {
				fmt.Fprintf(out, "  %-6s %s\n", op, columns[op])
			}
			for _, name := range registry.Tables() {
				t, _ := registry.Table(name)
				fmt.Fprintf(out, "table %s (id %s, %d columns)\n", t.Name, t.IDColumn, len(t.Columns))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "configuration file, defaults to TABLES_CONFIG")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), backend.Version)
			return nil
		},
	}
}
