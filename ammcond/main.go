// ammcond/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ammcon/broker"
	"ammcon/commands"
	"ammcon/config"
	"ammcon/gateway"
	"ammcon/serialcomm"
	"ammcon/templog"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	devMode    = flag.Bool("dev", false, "Use the simulated microcontroller instead of a serial port")
	portName   = flag.String("port", "", "Serial port, overrides serial.port")
	listenAddr = flag.String("listen", "", "HTTP listen address, overrides http.listen")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("ammcond: %v", err)
		}
	}
	if *devMode {
		cfg.Serial.Dev = true
	}
	if *portName != "" {
		cfg.Serial.Port = *portName
	}
	if *listenAddr != "" {
		cfg.HTTP.Listen = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("ammcond: %v", err)
	}

	table := commands.Default()
	if cfg.Vocabulary != "" {
		var err error
		if table, err = commands.Load(cfg.Vocabulary); err != nil {
			log.Fatalf("ammcond: %v", err)
		}
	}
	log.Printf("ammcond: %d commands loaded", table.Len())

	transport, err := serialcomm.Open(cfg.SerialConfig())
	if err != nil {
		log.Fatalf("ammcond: %v", err)
	}

	b := broker.New(transport, table, broker.WithQueueSize(cfg.QueueSize))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	var mqttGW *gateway.MQTT
	if cfg.MQTT.Enabled {
		mqttGW = gateway.NewMQTT(b, gateway.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Timeout:  cfg.RequestTimeout,
		})
		if err := mqttGW.Start(); err != nil {
			log.Printf("ammcond: %v (continuing without MQTT)", err)
			mqttGW = nil
		}
	}

	var httpGW *gateway.HTTP
	if cfg.HTTP.Enabled {
		httpGW = gateway.NewHTTP(b, table, cfg.RequestTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := httpGW.ListenAndServe(cfg.HTTP.Listen); err != nil {
				log.Printf("ammcond: http: %v", err)
			}
		}()
	}

	if cfg.TempLog.Enabled {
		tl := templog.New(b, cfg.TempLog.Dir, cfg.TempLog.Interval)
		log.Printf("ammcond: logging temperature to %s every %s", tl.Path(), cfg.TempLog.Interval)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Run(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("ammcond: received %s, shutting down", sig)

	cancel()
	if httpGW != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpGW.Shutdown(shutdownCtx); err != nil {
			log.Printf("ammcond: http shutdown: %v", err)
		}
		done()
	}
	if mqttGW != nil {
		mqttGW.Stop()
	}
	if err := b.Close(); err != nil {
		log.Printf("ammcond: close transport: %v", err)
	}
	wg.Wait()
	log.Println("ammcond: stopped")
}
