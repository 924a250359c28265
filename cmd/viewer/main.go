// Command viewer is a terminal playback viewer: it connects to the server,
// authenticates, optionally sets a target, and logs frames as they arrive.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysuper/titan/internal/client"
	"github.com/pysuper/titan/internal/logging"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:9001/ws", "server websocket URL")
		token     = flag.String("token", "", "authentication token")
		videoPath = flag.String("video", "", "playback target to request after connecting")
		autoPlay  = flag.Bool("autoplay", true, "start playback when the target is ready")
		logLevel  = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logging.InitLogger(*logLevel, "text")

	c := client.New(client.Options{
		URL:       *url,
		Token:     *token,
		AutoPlay:  *autoPlay,
		Reconnect: true,
		Callbacks: client.Callbacks{
			OnConnected: func() {
				slog.Info("Connected", "url", *url)
			},
			OnDisconnected: func(err error) {
				slog.Warn("Disconnected", "error", err)
			},
			OnFrame: func(index, total int, raw []byte) {
				slog.Info("Frame", "index", index, "total", total)
			},
			OnStatus: func(status string, currentFrame int) {
				slog.Info("Status change", "status", status, "current_frame", currentFrame)
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Shutting down")
		c.Close()
		cancel()
	}()

	if *videoPath != "" {
		go func() {
			// Wait for the connection before requesting the target.
			for c.State() != client.StateConnected {
				select {
				case <-ctx.Done():
					return
				case <-time.After(50 * time.Millisecond):
				}
			}
			if err := c.SetTarget(*videoPath); err != nil {
				slog.Error("Failed to set target", "error", err)
			}
		}()
	}

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Viewer exited", "error", err)
		os.Exit(1)
	}
}
