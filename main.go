package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/krau/konadetect/config"
	"github.com/krau/konadetect/onnx"
	"github.com/krau/konadetect/server"
	"github.com/krau/konadetect/service"
	ort "github.com/yalue/onnxruntime_go"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	slog.Info("Starting KonaDetect")
	cfg := config.C()

	ort.SetSharedLibraryPath(onnx.LibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("Failed to initialize ONNX Runtime environment", slog.String("error", err.Error()))
		return
	}
	defer ort.DestroyEnvironment()

	detector, err := service.NewYOLO(ctx, service.Options{
		ModelPath:     filepath.Join(cfg.ModelDir, cfg.ModelFileName),
		ModelUrl:      cfg.ModelUrl,
		LabelsPath:    filepath.Join(cfg.ModelDir, cfg.ModelLabelsName),
		Sessions:      cfg.Sessions,
		ConfThreshold: cfg.ConfThreshold,
		IouThreshold:  cfg.IouThreshold,
		MaxDetections: cfg.MaxDetections,
	})
	if err != nil {
		slog.Error("Failed to load model", slog.String("error", err.Error()))
		return
	}
	defer detector.Close()

	if err := os.MkdirAll(cfg.UploadDir, 0755); err != nil {
		slog.Error("Failed to create upload directory", slog.String("error", err.Error()))
		return
	}

	gin.SetMode(gin.ReleaseMode)
	r := server.NewRouter(detector, server.Options{
		UploadDir:     cfg.UploadDir,
		FieldName:     cfg.FieldName,
		MaxUploadSize: cfg.MaxUploadSize,
		Token:         cfg.Token,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("Listening on", slog.String("address", srv.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", slog.String("error", err.Error()))
	}
}
