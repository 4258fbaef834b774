package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"ammcon/broker"
	"ammcon/commands"
	"ammcon/protocol"
	"ammcon/serialcomm"
	"ammcon/templog"
)

var (
	portName = flag.String("port", "/dev/ttyUSB0", "Serial port")
	baud     = flag.Int("baud", serialcomm.DefaultBaudRate, "Baud rate")
	driver   = flag.String("driver", serialcomm.DriverTarm, "Serial driver: tarm, bugst or virtual")
	raw      = flag.String("raw", "", "Send hex payload bytes instead of a named command, e.g. \"B1 01\"")
	aircon   = flag.String("aircon", "", "Send a full aircon setting, e.g. \"living on 24 cool auto [powerful|sleep]\"")
	timeout  = flag.Duration("timeout", 5*time.Second, "Time to wait for the response")
	list     = flag.Bool("list", false, "List known commands and exit")
	verbose  = flag.Bool("v", false, "Log frames")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: send [flags] <command name>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	table := commands.Default()
	if *list {
		for _, name := range table.Names() {
			payload, _ := table.Lookup(name)
			fmt.Printf("%-18s % X\n", name, payload)
		}
		return
	}

	name := strings.Join(flag.Args(), " ")
	if name == "" && *raw == "" && *aircon == "" {
		flag.Usage()
		os.Exit(2)
	}

	var payload []byte
	if *raw != "" {
		var err error
		payload, err = hex.DecodeString(strings.ReplaceAll(*raw, " ", ""))
		if err != nil {
			log.Fatalf("send: bad -raw payload: %v", err)
		}
	}
	if *aircon != "" {
		setting, err := commands.ParseAircon(*aircon)
		if err != nil {
			log.Fatalf("send: %v", err)
		}
		if payload, err = setting.Payload(); err != nil {
			log.Fatalf("send: %v", err)
		}
	}

	cfg := serialcomm.DefaultConfig(*portName)
	cfg.BaudRate = *baud
	cfg.Driver = *driver
	cfg.ReadDeadline = *timeout
	cfg.WriteTimeout = *timeout

	t, err := serialcomm.Open(cfg)
	if err != nil {
		log.Fatalf("send: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.Default()
	}
	b := broker.New(t, table, broker.WithLogger(logger))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var resp *protocol.Response
	if payload != nil {
		resp, err = b.SubmitRaw(ctx, payload)
	} else {
		resp, err = b.SubmitContext(ctx, name)
	}
	if err != nil {
		b.Close()
		log.Fatalf("send: %v", err)
	}

	fmt.Println(resp)
	if r, err := templog.ParseReading(resp); err == nil && resp.Desc[0] >= serialcomm.SensorOpcodeMin && resp.Desc[0] < serialcomm.SensorOpcodeMax {
		fmt.Println(r)
	}
	if !resp.Acked() {
		b.Close()
		os.Exit(1)
	}
}
