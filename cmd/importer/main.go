package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platebook/importer-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init importer: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Start(); err != nil {
		a.Log.Error("Failed to start importer", "error", err)
		os.Exit(1)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		a.Log.Info("Shutting down...")
		a.Close()
		os.Exit(0)
	}()

	a.Log.Info("Importer listening", "port", a.Cfg.Port, "ws_port", a.Cfg.WSPort)
	if err := a.Run(); err != nil {
		a.Log.Error("Server failed", "error", err)
	}
}
