package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	conf "github.com/likaia/nginxpulse-exporter/config"
	"github.com/likaia/nginxpulse-exporter/internal/app"
	"github.com/likaia/nginxpulse-exporter/internal/model"
	logging "github.com/likaia/nginxpulse-exporter/internal/otel"
)

func Run() {
	// Load configuration
	config, appErr := conf.LoadConfig()
	if appErr != nil {
		slog.Error("nginxpulse_exporter.main.configuration_error", slog.String("error", appErr.Error()))
		return
	}

	// slog + OTEL logging
	service := resource.NewSchemaless(
		semconv.ServiceName(model.AppServiceName),
		semconv.ServiceVersion(model.CurrentVersion),
		semconv.ServiceInstanceID(config.Consul.Id),
		semconv.ServiceNamespace(model.NamespaceName),
	)
	shutdown := logging.Setup(service)

	// Initialize the application
	application, appErr := app.New(config, shutdown)
	if appErr != nil {
		slog.Error("nginxpulse_exporter.main.application_initialization_error", slog.String("error", appErr.Error()))
		return
	}

	// Initialize signal handling for graceful shutdown
	initSignals(application)

	slog.Debug("nginxpulse_exporter.main.configuration_loaded",
		slog.String("http_addr", config.HTTP.Addr),
		slog.String("consul", config.Consul.Address),
		slog.Bool("embedded", config.Embedded()),
	)

	// Start the application
	slog.Info("nginxpulse_exporter.main.starting_application")
	startErr := application.Start()
	if startErr != nil {
		slog.Error("nginxpulse_exporter.main.application_start_error", slog.String("error", startErr.Error()))
	} else {
		slog.Info("nginxpulse_exporter.main.application_started_successfully")
	}
}

func initSignals(application *app.App) {
	slog.Info("nginxpulse_exporter.main.initializing_stop_signals")
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch)

	go func() {
		for {
			s := <-sigch
			handleSignals(s, application)
		}
	}()
}

func handleSignals(signal os.Signal, application *app.App) {
	if signal == syscall.SIGTERM || signal == syscall.SIGINT {
		err := application.Stop()
		if err != nil {
			return
		}
		slog.Info(
			"nginxpulse_exporter.main.received_kill_signal",
			slog.String("signal", signal.String()),
			slog.String("status", "service gracefully stopped"),
		)
		os.Exit(0)
	}
}
