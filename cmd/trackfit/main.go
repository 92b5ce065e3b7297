package main

import (
	"context"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/knadh/koanf/v2"
	"github.com/knadh/stuffbin"
	"github.com/trackfit/trackfit/internal/authflow"
	"github.com/trackfit/trackfit/internal/clock"
	"github.com/trackfit/trackfit/internal/otp"
	"github.com/trackfit/trackfit/internal/store"
	"github.com/zerodha/logf"
)

// App is the global app context that groups the necessary
// controls (store, config etc.) to be injected into the HTTP handlers.
type App struct {
	otp       *otp.Service
	store     store.Store
	lo        logf.Logger
	tpl       *template.Template
	fs        stuffbin.FileSystem
	constants constants
}

var (
	lo = initLogger(false)
	ko = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

func main() {
	initConfig()
	if ko.Bool("app.debug") {
		lo = initLogger(true)
	}

	app := &App{
		lo: lo,
		fs: initFS(os.Args[0]),

		constants: constants{
			OtpTTL:   ko.Duration("app.otp_ttl"),
			AppName:  ko.String("app.name"),
			RootURL:  strings.TrimRight(ko.String("app.root_url"), "/"),
			AuthPath: authflow.DefaultAuthPath,
			Redirect: "/tracker",
		},
	}
	if app.constants.OtpTTL <= 0 {
		app.constants.OtpTTL = otp.DefaultTTL
	}
	if app.constants.AppName == "" {
		app.constants.AppName = "TrackFit"
	}

	// Load the store.
	st, err := initStore()
	if err != nil {
		lo.Fatal("error initializing store", "error", err)
	}
	app.store = st

	// Load the message providers.
	channels, err := initProviders(app.fs)
	if err != nil {
		lo.Fatal("error loading providers", "error", err)
	}

	app.otp = otp.New(otp.Opt{
		AppName: app.constants.AppName,
		TTL:     app.constants.OtpTTL,
	}, app.store, channels, clock.New(), lo)

	// Compile static templates.
	tpl, err := stuffbin.ParseTemplatesGlob(nil, app.fs, "/static/*.html")
	if err != nil {
		lo.Fatal("error compiling template", "error", err)
	}
	app.tpl = tpl

	// HTTP Server.
	timeout := ko.Duration("app.server_timeout")
	if timeout.Seconds() < 1 {
		timeout = time.Second * 5
	}

	srv := &http.Server{
		Addr:         ko.String("app.address"),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Handler:      initHTTPHandler(app, ko.Strings("app.cors_origins")),
	}

	go func() {
		lo.Info("starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lo.Fatal("couldn't start server", "error", err)
		}
	}()

	// Wait for a termination signal and shut down gracefully.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lo.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		lo.Error("error shutting down server", "error", err)
	}
	for _, c := range channels {
		if cl, ok := c.Provider.(interface{ Close() }); ok {
			cl.Close()
		}
	}
	if err := app.store.Close(); err != nil {
		lo.Error("error closing store", "error", err)
	}
}

// initHTTPHandler registers the HTTP handlers.
func initHTTPHandler(app *App, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", wrap(app, handlePage("index", "Home")))
	r.Get("/auth", wrap(app, handlePage("auth", "Sign in")))
	r.Get("/tracker", wrap(app, handlePage("tracker", "Tracker")))
	r.Get("/static/*", func(w http.ResponseWriter, r *http.Request) {
		app.fs.FileServer().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.Get("/health", wrap(app, handleHealthCheck))
		r.Post("/otp/send", wrap(app, handleSendOTP))
		r.Post("/otp/verify", wrap(app, handleVerifyOTP))
		r.Get("/me", bearer(app, wrap(app, handleGetMe)))
	})

	return r
}
