// Command agent runs a NetWatch Server Agent: a synthetic sensor that
// emits one sine-wave sample per tick over UDP to its Rack Controller.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"netwatch/internal/agent"
	"netwatch/internal/config"
)

func main() {
	cfg, err := config.AgentConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: configuration error: %v\n", err)
		os.Exit(1)
	}

	instanceID := uuid.NewString()
	freqHz := cfg.ExpectedFrequency()
	log.Printf("agent: starting instance=%s rack_id=%d server_id=%d -> %s:%d freq=%.3fHz sample_rate=%.1fHz",
		instanceID, cfg.RackID, cfg.ServerID, cfg.RackControllerHost, cfg.RackControllerPort, freqHz, cfg.SampleRateHz)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := agent.ResolveAndDial(ctx, cfg.RackControllerHost, cfg.RackControllerPort, cfg.ResolveRetries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: could not reach rack controller, exiting: %v\n", err)
		os.Exit(1)
	}

	sender := agent.NewSender(cfg.RackID, cfg.ServerID, freqHz, cfg.Amplitude, cfg.SampleRateHz, conn)
	defer sender.Close()

	period := time.Duration(float64(time.Second) / cfg.SampleRateHz)
	go sender.Run(ctx, period)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Printf("agent: shutting down instance=%s", instanceID)
	cancel()
	time.Sleep(1 * time.Second)
	log.Printf("agent: stopped instance=%s", instanceID)
}
