package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mthorley/hydronet/internal/config"
	"github.com/mthorley/hydronet/internal/events"
	"github.com/mthorley/hydronet/internal/export"
	"github.com/mthorley/hydronet/internal/mqtt"
	"github.com/mthorley/hydronet/internal/sim"
	"github.com/mthorley/hydronet/internal/storage/postgres"
	"github.com/mthorley/hydronet/internal/version"
)

type LogLine struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func logEvent(level, event, msg string, fields map[string]interface{}) {
	line := LogLine{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Event:     event,
		Message:   msg,
		Fields:    fields,
	}
	b, _ := json.Marshal(line)
	fmt.Println(string(b))
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "scenario.yaml", "path to the scenario file")
	steps := flag.Int("steps", 0, "override the scenario's step count")
	flag.Parse()

	hostname, _ := os.Hostname()
	logEvent("info", "system.startup", "hydronet starting", map[string]interface{}{
		"service":  "hydronet",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	cfg, err := config.LoadScenario(*configPath)
	if err != nil {
		log.Printf("failed to load scenario: %v", err)
		return err
	}

	stepCount := cfg.Scenario.Steps
	if *steps > 0 {
		stepCount = *steps
	}
	if stepCount < 1 {
		err := fmt.Errorf("scenario %q declares no steps; pass -steps", cfg.Name())
		log.Printf("%v", err)
		return err
	}

	nodes, err := cfg.Build()
	if err != nil {
		log.Printf("invalid scenario: %v", err)
		return err
	}
	sys, err := sim.New(nodes)
	if err != nil {
		log.Printf("invalid network: %v", err)
		return err
	}

	runID := uuid.New().String()
	events.SetRun(runID)

	// Postgres sink. Unavailability degrades to a local run.
	var pg *postgres.Client
	if cfg.Sinks.Postgres.Enabled {
		pg, err = postgres.New(cfg.Name())
		if err != nil {
			log.Printf("postgres sink unavailable: %v", err)
			pg = nil
		} else {
			defer pg.Close()
			events.SetPostgresClient(pg)
			if err := pg.CreateRun(runID, stepCount); err != nil {
				log.Printf("failed to register run: %v", err)
			}
			sys.AddRecorder(pg)
		}
	}

	// MQTT sink plus the operator target feed.
	var statusPub *mqtt.RecordPublisher
	if cfg.Sinks.MQTT.Enabled {
		broker := mqtt.NewClient("hydronet-" + runID[:8])
		if err := broker.Connect(); err != nil {
			log.Printf("mqtt sink unavailable: %v", err)
		} else {
			defer broker.Disconnect()
			statusPub = mqtt.NewRecordPublisher(broker, cfg.TopicPrefix(), runID)
			sys.AddRecorder(statusPub)

			feed := mqtt.NewTargetFeed(broker, cfg.TopicPrefix())
			if err := feed.Start(); err != nil {
				log.Printf("target feed unavailable: %v", err)
			} else {
				feed.Attach(nodes)
			}
		}
	}

	simErr := sys.Simulate(stepCount)
	failure := ""
	if simErr != nil {
		failure = simErr.Error()
	}

	if pg != nil {
		if err := pg.FinishRun(runID, string(sys.State()), sys.Steps(), failure); err != nil {
			log.Printf("failed to finalize run: %v", err)
		}
	}
	if statusPub != nil {
		if err := statusPub.PublishStatus(string(sys.State()), sys.Steps()); err != nil {
			log.Printf("failed to publish run status: %v", err)
		}
	}

	// Partial logs are exported too: records appended before a
	// failure are kept.
	if cfg.Sinks.CSV.Enabled {
		if err := export.WriteAll(sys.Results(), cfg.CSVDir()); err != nil {
			log.Printf("csv export failed: %v", err)
		}
	}

	if simErr != nil {
		fields := map[string]interface{}{"run": runID}
		var fail *sim.StepFailure
		if errors.As(simErr, &fail) {
			fields["node"] = fail.Node
			fields["step"] = fail.Step
		}
		logEvent("error", "system.shutdown", simErr.Error(), fields)
		return simErr
	}

	logEvent("info", "system.shutdown", "run complete", map[string]interface{}{
		"run":   runID,
		"steps": sys.Steps(),
	})
	return nil
}
