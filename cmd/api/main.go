package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mthorley/hydronet/internal/api"
	"github.com/mthorley/hydronet/internal/config"
	"github.com/mthorley/hydronet/internal/events"
	"github.com/mthorley/hydronet/internal/mqtt"
	"github.com/mthorley/hydronet/internal/sim"
	"github.com/mthorley/hydronet/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "scenario.yaml", "path to the scenario file")
	port := flag.Int("port", 8080, "listen port")
	steps := flag.Int("steps", 0, "override the scenario's step count")
	flag.Parse()

	api.InitAuth()
	api.InitTLS()
	api.InitMetrics()
	api.InitAlerts()

	cfg, err := config.LoadScenario(*configPath)
	if err != nil {
		log.Fatalf("failed to load scenario: %v", err)
	}
	api.SetScenarioName(cfg.Name())

	stepCount := cfg.Scenario.Steps
	if *steps > 0 {
		stepCount = *steps
	}
	if stepCount < 1 {
		log.Fatalf("scenario %q declares no steps; pass -steps", cfg.Name())
	}

	// Validate the network once up front so a broken scenario fails
	// at startup, not on the first POST /runs.
	nodes, err := cfg.Build()
	if err != nil {
		log.Fatalf("invalid scenario: %v", err)
	}
	sys, err := sim.New(nodes)
	if err != nil {
		log.Fatalf("invalid network: %v", err)
	}
	api.SetNodeValidator(sys)
	api.SetSimulatorReady(true)

	var pg *postgres.Client
	if cfg.Sinks.Postgres.Enabled {
		pg, err = postgres.New(cfg.Name())
		if err != nil {
			log.Printf("postgres unavailable: %v", err)
			api.SetPostgresState(false, false)
		} else {
			events.SetPostgresClient(pg)
			api.SetPostgresState(true, false)
			if n, err := api.RestoreRuns(pg); err != nil {
				log.Printf("failed to restore run history: %v", err)
			} else if n > 0 {
				log.Printf("restored %d run(s) from postgres", n)
			}
		}
	} else {
		api.SetPostgresState(false, true)
	}

	var broker *mqtt.Client
	var feed *mqtt.TargetFeed
	if cfg.Sinks.MQTT.Enabled {
		broker = mqtt.NewClient("hydronet-api")
		if err := broker.Connect(); err != nil {
			log.Printf("mqtt unavailable: %v", err)
			api.SetMQTTState(false, false)
			broker = nil
		} else {
			api.SetMQTTState(true, false)
			feed = mqtt.NewTargetFeed(broker, cfg.TopicPrefix())
			if err := feed.Start(); err != nil {
				log.Printf("target feed unavailable: %v", err)
				feed = nil
			} else {
				api.SetTargetFeed(feed)
			}
		}
	} else {
		api.SetMQTTState(false, true)
	}

	// One run at a time. Each run rebuilds the network from the
	// scenario so state never leaks between runs.
	var runMu sync.Mutex
	runner := func() (string, error) {
		runMu.Lock()
		defer runMu.Unlock()

		nodes, err := cfg.Build()
		if err != nil {
			return "", fmt.Errorf("invalid scenario: %w", err)
		}
		sys, err := sim.New(nodes)
		if err != nil {
			return "", fmt.Errorf("invalid network: %w", err)
		}
		if feed != nil {
			feed.Attach(nodes)
		}

		runID := uuid.New().String()
		events.SetRun(runID)
		api.Runs().Start(runID, cfg.Name())

		if pg != nil {
			if err := pg.CreateRun(runID, stepCount); err != nil {
				log.Printf("failed to register run: %v", err)
			}
			sys.AddRecorder(pg)
		}
		var statusPub *mqtt.RecordPublisher
		if broker != nil {
			statusPub = mqtt.NewRecordPublisher(broker, cfg.TopicPrefix(), runID)
			sys.AddRecorder(statusPub)
		}

		simErr := sys.Simulate(stepCount)
		failure := ""
		if simErr != nil {
			failure = simErr.Error()
		}

		api.Runs().Finish(runID, sys.State(), sys.Steps(), failure, sys.Results())
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
		if simErr == nil {
			api.SetRunLastCompleted(time.Now())
		}
		return runID, simErr
	}
	api.SetRunner(runner)

	api.StartAlertMonitor(15 * time.Second)

	// Run the scenario once on startup; later runs come through POST /runs.
	if runID, err := runner(); err != nil {
		log.Printf("initial run %s failed: %v", runID, err)
		api.SendAlert(api.AlertRunFailed, api.SeverityCritical, err.Error(), map[string]interface{}{
			"run_id": runID,
		})
	} else {
		log.Printf("initial run %s complete", runID)
	}

	log.Printf("API listening on :%d", *port)
	if err := api.ListenAndServe(*port); err != nil {
		log.Fatalf("api server failed: %v", err)
	}
}
