package main

import (
	"context"
	"fmt"
	"os"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/app"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	if err := a.Start(); err != nil {
		a.Log.Error("start failed", "error", err)
		a.Close()
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	code := 0
	select {
	case <-ctx.Done():
		a.Log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			a.Log.Error("server exited", "error", err)
			code = 1
		}
	}
	a.Close()
	stop()
	os.Exit(code)
}
