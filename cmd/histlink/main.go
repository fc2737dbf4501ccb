// Histlink - historian gateway
//
// A headless gateway that polls tags from a PI-style historian REST API and
// republishes samples to MQTT, Kafka, and Valkey, with a local REST API for
// reads and writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"histlink/api"
	"histlink/config"
	"histlink/kafka"
	"histlink/logging"
	"histlink/mqtt"
	"histlink/namespace"
	"histlink/piweb"
	"histlink/poller"
	"histlink/valkey"
)

// Version is set at build time via -ldflags
var Version = "dev"

// managers bundles the shared backends for the API router.
type managers struct {
	cfg    *config.Config
	client *piweb.Client
	poller *poller.Manager
}

func (m *managers) GetConfig() *config.Config  { return m.cfg }
func (m *managers) GetClient() *piweb.Client   { return m.client }
func (m *managers) GetPoller() *poller.Manager { return m.poller }

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to configuration file")
	debugLog := flag.String("debug", "", "Write debug log to this file")
	debugFilter := flag.String("debug-filter", "", "Comma-separated debug components (empty = all)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("histlink %s\n", Version)
		os.Exit(0)
	}

	if *debugLog != "" {
		logger, err := logging.NewDebugLogger(*debugLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening debug log: %v\n", err)
			os.Exit(1)
		}
		logger.SetFilter(*debugFilter)
		logging.SetGlobalDebugLogger(logger)
		defer logger.Close()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// Historian client
	client := piweb.NewClient(&cfg.Historian)

	// Verify the historian is reachable before starting anything else
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	if _, err := client.DataServer(ctx, cfg.DataServer); err != nil {
		fmt.Fprintf(os.Stderr, "Historian check failed: %v\n", err)
	}
	cancel()

	// Poller
	manager := poller.NewManager(client, cfg.DataServer, cfg.PollRate)
	manager.LoadFromConfig(cfg.Tags)

	// Write-back handler shared by the broker sinks
	writeHandler := func(tag string, value interface{}) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return manager.WriteTag(ctx, tag, value, time.Time{})
	}

	// Sinks
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPub = mqtt.NewPublisher(&cfg.MQTT, namespace.New(cfg.Namespace, cfg.MQTT.Selector))
		mqttPub.SetWriteHandler(writeHandler)
		if err := mqttPub.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "MQTT connect failed: %v\n", err)
		}
	}

	var valkeyPub *valkey.Publisher
	if cfg.Valkey.Enabled {
		valkeyPub = valkey.NewPublisher(&cfg.Valkey, namespace.New(cfg.Namespace, cfg.Valkey.Selector))
		valkeyPub.SetWriteHandler(writeHandler)
		if err := valkeyPub.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Valkey connect failed: %v\n", err)
		}
	}

	var kafkaProd *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProd = kafka.NewProducer(&cfg.Kafka, namespace.New(cfg.Namespace, cfg.Kafka.Selector))
		if err := kafkaProd.Connect(); err != nil {
			fmt.Fprintf(os.Stderr, "Kafka connect failed: %v\n", err)
		}
	}

	// Fan changed samples out to the sinks. Each sink runs in its own
	// goroutine so a slow broker doesn't stall the others.
	manager.SetOnValueChange(func(changes []poller.ValueChange) {
		changesCopy := make([]poller.ValueChange, len(changes))
		copy(changesCopy, changes)

		if mqttPub != nil && mqttPub.IsRunning() {
			go func() {
				for _, c := range changesCopy {
					mqttPub.Publish(c.Tag, c.Value, c.Timestamp)
				}
			}()
		}
		if valkeyPub != nil && valkeyPub.IsRunning() {
			go func() {
				for _, c := range changesCopy {
					valkeyPub.Publish(c.Tag, c.Value, c.Timestamp)
				}
			}()
		}
		if kafkaProd != nil && kafkaProd.GetStatus() == kafka.StatusConnected {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				for _, c := range changesCopy {
					kafkaProd.Publish(ctx, c.Tag, c.Value, c.Timestamp)
				}
			}()
		}
	})

	manager.Start()

	// Local REST API
	var apiServer *api.Server
	if cfg.Web.Enabled {
		router := api.NewRouter(&managers{cfg: cfg, client: client, poller: manager})
		apiServer = api.NewServer(&cfg.Web, router)
		if err := apiServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "API server failed: %v\n", err)
		} else {
			fmt.Printf("API listening on %s\n", apiServer.Address())
		}
	}

	fmt.Printf("histlink %s polling %d tags from %s every %v\n",
		Version, len(cfg.Tags), cfg.Historian.Host, cfg.PollRate)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("shutting down")
	manager.Stop()
	if apiServer != nil {
		apiServer.Stop()
	}
	if mqttPub != nil {
		mqttPub.Stop()
	}
	if valkeyPub != nil {
		valkeyPub.Stop()
	}
	if kafkaProd != nil {
		kafkaProd.Disconnect()
	}
}
