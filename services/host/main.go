// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
	"github.com/AleutianAI/DeviceLab/services/host/config"
	"github.com/AleutianAI/DeviceLab/services/host/devices"
	"github.com/AleutianAI/DeviceLab/services/host/observability"
	"github.com/AleutianAI/DeviceLab/services/host/planner"
	"github.com/AleutianAI/DeviceLab/services/host/routes"
	"github.com/AleutianAI/DeviceLab/services/host/store"
)

const serviceName = "devicelab-host"

// initTracer wires the OTLP trace exporter. Tracing is optional; when
// no collector endpoint is configured the service runs without it.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()

	if cfg.OTELEndpoint != "" {
		cleanup, err := initTracer(cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	} else {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
	}

	logger := logging.New(logging.Config{Service: serviceName, JSON: true})
	defer logger.Close()

	navStore, err := store.NewServerStore(cfg.ServerURL, cfg.ServerToken)
	if err != nil {
		log.Fatalf("FATAL: server store: %v", err)
	}

	var objects store.ObjectStore
	if cfg.GCSBucket != "" {
		gcs, err := store.NewGCSStore(context.Background(), cfg.GCSBucket,
			os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		if err != nil {
			log.Fatalf("FATAL: object store: %v", err)
		}
		defer gcs.Close()
		objects = gcs
	} else {
		slog.Warn("GCS_BUCKET not set, screenshot uploads disabled")
	}

	var aiPlanner planner.Planner
	if cfg.OpenAIAPIKey != "" {
		p, err := planner.NewOpenAIPlanner(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
		if err != nil {
			log.Fatalf("FATAL: planner: %v", err)
		}
		aiPlanner = p
	} else {
		slog.Warn("OPENAI_API_KEY not set, AI exploration disabled")
	}

	host := devices.NewHost(cfg, navStore, objects, aiPlanner, logger)
	if len(host.Devices()) == 0 {
		slog.Warn("No DEVICE{i}_NAME blocks configured, host starts with zero devices")
	}

	metrics := observability.InitMetrics()
	observability.RegisterCacheCollectors(host.Cache)
	host.Runner.OnCallback = metrics.RecordCallback
	for _, device := range host.Devices() {
		device.Nav.SetMetrics(metrics)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, host, metrics)

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Starting the host server", "host", cfg.Name, "addr", addr,
		"devices", len(host.Devices()))
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
