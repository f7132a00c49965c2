// Command hub runs the routing hub: the TCP server that accepts peer
// connections, assigns ids, and relays chat and file-transfer traffic
// between them (§4.4).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"filetransfer/internal/config"
	"filetransfer/internal/hub"
	"filetransfer/pkg/netutil"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if flag.NArg() > 0 {
		port, err := strconv.Atoi(flag.Arg(0))
		if err != nil {
			log.Fatalf("invalid port %q: %v", flag.Arg(0), err)
		}
		cfg.Port = port
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		log.Fatalf("cannot create download dir %s: %v", cfg.DownloadDir, err)
	}

	h := hub.New(cfg, nil)

	go logEvents(h)

	localIP := netutil.GetLocalIP()
	if localIP == "" {
		localIP = "127.0.0.1"
	}
	printBanner(cfg, localIP)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("[HUB] shutting down")
		h.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := h.ListenAndServe(addr); err != nil {
		log.Fatal(err)
	}
	os.Exit(0)
}

func logEvents(h *hub.Hub) {
	for ev := range h.Events() {
		switch ev.Kind {
		case hub.EventPeerJoined:
			log.Printf("[EVENT] peer joined: %s (%s)", ev.PeerID, ev.PeerName)
		case hub.EventPeerLeft:
			log.Printf("[EVENT] peer left: %s (%s)", ev.PeerID, ev.PeerName)
		case hub.EventTransferStarted:
			log.Printf("[EVENT] transfer started: %s %q", ev.TransferID, ev.FileName)
		case hub.EventTransferEnded:
			log.Printf("[EVENT] transfer ended: %s %q success=%v reason=%q", ev.TransferID, ev.FileName, ev.Success, ev.Reason)
		}
	}
}

func printBanner(cfg config.Config, localIP string) {
	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════════════════════╗\n")
	fmt.Printf("║                   Hub — Ready!                        ║\n")
	fmt.Printf("╠══════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Local IP : %-40s║\n", localIP)
	fmt.Printf("║  Port     : %-40d║\n", cfg.Port)
	fmt.Printf("║  Storage  : %-40s║\n", cfg.DownloadDir)
	fmt.Printf("╚══════════════════════════════════════════════════════╝\n\n")
}
