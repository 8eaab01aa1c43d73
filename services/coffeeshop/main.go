package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/coffeeshop/core"
	"github.com/relabs-tech/coffeeshop/core/access"
	"github.com/relabs-tech/coffeeshop/core/backend"
	"github.com/relabs-tech/coffeeshop/core/csql"
	"github.com/relabs-tech/coffeeshop/core/kafka"
	"github.com/relabs-tech/coffeeshop/core/logger"
	"github.com/relabs-tech/coffeeshop/core/registry"
)

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres dbname=postgres sslmode=disable"
// and POSTGRES_PASSWORD="docker"
type Service struct {
	Postgres         string        `env:"POSTGRES,required" description:"the connection string for the database without password"`
	PostgresPassword string        `env:"POSTGRES_PASSWORD" description:"password to the Postgres DB"`
	Driver           string        `env:"DB_DRIVER,default=postgres" description:"postgres or sqlite"`
	Schema           string        `env:"DB_SCHEMA,default=coffeeshop" description:"the database schema"`
	Auth0Domain      string        `env:"AUTH0_DOMAIN,required" description:"the domain of the identity provider"`
	Audience         string        `env:"API_AUDIENCE,required" description:"the audience tokens must be issued for"`
	JWKSURL          string        `env:"JWKS_URL" description:"the key set url, defaults to https://{AUTH0_DOMAIN}/.well-known/jwks.json"`
	JWKSTTL          time.Duration `env:"JWKS_TTL,default=6h" description:"how long a downloaded key set is used"`
	KafkaBrokers     string        `env:"KAFKA_BROKERS" description:"comma separated kafka brokers, no notifications if empty"`
	KafkaTopic       string        `env:"KAFKA_TOPIC,default=drink_notification" description:"the topic for drink notifications"`
	Port             string        `env:"PORT,default=3000" description:"the http port"`
	LogLevel         string        `env:"LOG_LEVEL,default=info" description:"the log level"`
}

func main() {
	// runs after all other deferred cleanups
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}

	level, err := logrus.ParseLevel(service.LogLevel)
	if err != nil {
		panic(err)
	}
	logger.InitLogger(level)
	rlog := logger.Default()

	db, err := csql.Open(service.Driver, service.Postgres, service.PostgresPassword, service.Schema)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot open database")
	}
	defer db.Close()

	domain := strings.TrimSuffix(strings.TrimPrefix(service.Auth0Domain, "https://"), "/")
	jwksURL := service.JWKSURL
	if jwksURL == "" {
		jwksURL = "https://" + domain + "/.well-known/jwks.json"
	}
	reg := registry.MustNew(db)
	gate := access.NewGate(&access.GateBuilder{
		Issuer:   "https://" + domain + "/",
		Audience: service.Audience,
		KeySet: access.NewKeySet(&access.KeySetBuilder{
			URL:      jwksURL,
			TTL:      service.JWKSTTL,
			Registry: &reg,
		}),
	})

	var notifier core.Notifier
	if brokers := kafka.ParseBrokers(service.KafkaBrokers); len(brokers) > 0 {
		kafkaNotifier := kafka.NewNotifier(&kafka.Builder{
			Brokers: brokers,
			Topic:   service.KafkaTopic,
		})
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	router := mux.NewRouter()
	backend.New(&backend.Builder{
		DB:       db,
		Router:   router,
		Gate:     gate,
		Notifier: notifier,
	})

	accessLog := logrus.StandardLogger().Writer()
	defer accessLog.Close()
	srv := &http.Server{
		Addr:              ":" + service.Port,
		Handler:           handlers.CombinedLoggingHandler(accessLog, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	rlog.Infoln("listen on port", srv.Addr)
	if err = serve(srv, signalCh); err != nil {
		rlog.WithError(err).Errorln("Error 4900: server stopped")
		exitCode = 1
	}
	rlog.Infoln("stopped")
}

// serve runs srv until stop receives a signal or the server fails, then shuts it
// down gracefully. It returns the error of a failed server.
func serve(srv *http.Server, stop <-chan os.Signal) error {
	listenErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	var err error
	select {
	case <-stop:
	case err = <-listenErr:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
