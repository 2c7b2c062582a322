package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"wallbox-service/internal/logger"
	"wallbox-service/internal/network"
)

func main() {
	var (
		listenAddr string
		peerAddr   string
		interval   time.Duration
		logLevel   int
	)
	flag.StringVar(&listenAddr, "listen", "0.0.0.0:50011", "Address receiving the wallbox commands")
	flag.StringVar(&peerAddr, "peer", "127.0.0.1:50010", "Wallbox service address")
	flag.DurationVar(&interval, "interval", 100*time.Millisecond, "State message period")
	flag.IntVar(&logLevel, "log", int(logger.LogLevelWarning), "Log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")
	flag.Parse()

	l := logger.NewLogger(logger.LogLevel(logLevel), logger.Options{Console: true, Timestamps: true})
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	transport := network.NewUDPTransport(listenAddr, peerAddr, l)
	sim := NewSimulator(transport, os.Stdout, l)
	transport.SetReceiveHandler(sim.HandleDatagram)
	if err := transport.Connect(); err != nil {
		l.Fatalf("%v", err)
	}
	defer transport.Disconnect()

	fmt.Printf("Peer simulator sending to %s, listening on %s\n", peerAddr, listenAddr)
	printHelp(os.Stdout)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nSimulator stopped.")
			return
		case <-ticker.C:
			if err := sim.SendState(); err != nil {
				l.Warnf("Failed to send state: %v", err)
			}
		case line, ok := <-lines:
			if !ok || sim.Execute(line) {
				fmt.Println("Simulator stopped.")
				return
			}
			fmt.Print("> ")
		}
	}
}
