package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

var myBuild string

func main() {
	fmt.Printf("quadenc build %s\n", myBuild)

	cfgfile := flag.String("cfg", "quadenc.yaml", "Config file")
	flag.Parse()

	f, err := os.Open(*cfgfile)
	if err != nil {
		log.Fatalf("Open config: %v", err)
	}
	cfg, err := loadConfig(f)
	f.Close()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	app.start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	app.shutdown()
	fmt.Println("Shutdown complete")
}
