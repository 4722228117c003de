package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"qrface/internal/attendance"
	"qrface/internal/camera"
	"qrface/internal/config"
	"qrface/internal/faceclient"
	"qrface/internal/kiosk"
	"qrface/internal/profile"
)

// Kiosk runs the student check-in terminal against the api.
func main() {
	config.LoadDotenv()
	cfg := config.LoadKiosk()
	if cfg.Email == "" || cfg.Token == "" {
		log.Fatalf("KIOSK_EMAIL and KIOSK_TOKEN are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("warning: face service not available: %v", err)
		}
	}

	profiles := profile.NewClient(cfg.APIURL, cfg.Token)
	k := kiosk.New(cfg.Email, kiosk.Deps{
		Profiles:  profiles,
		Updater:   profiles,
		Scanner:   camera.NewLineScanner(),
		Camera:    &camera.CommandCamera{Command: strings.Fields(cfg.SnapshotCmd), Timeout: cfg.CaptureTimeout},
		Extractor: face,
		Submitter: attendance.NewClient(cfg.APIURL, cfg.Token),
	}, os.Stdout)
	k.CaptureTimeout = cfg.CaptureTimeout

	if err := k.Load(ctx); err != nil {
		log.Fatalf("kiosk: %v", err)
	}
	if err := k.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		log.Fatalf("kiosk: %v", err)
	}
}
