// Command peer is the minimal interactive control surface named in §6: a
// thin shell over internal/peerclient exposing send / accept / reject /
// list / quit equivalents. Prompt rendering and progress bars are
// explicitly out of scope for the core (§1, §9); this just formats lines.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"filetransfer/internal/config"
	"filetransfer/internal/peerclient"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8888", "hub address")
	name := flag.String("name", "", "display name (defaults to hostname)")
	downloadDir := flag.String("downloads", "storage", "directory to save accepted downloads into")
	flag.Parse()

	displayName := *name
	if displayName == "" {
		if h, err := os.Hostname(); err == nil {
			displayName = h
		} else {
			displayName = "peer"
		}
	}

	cfg := config.Default()
	cfg.DownloadDir = *downloadDir

	c, err := peerclient.Dial(*addr, cfg)
	if err != nil {
		log.Fatalf("connect to hub: %v", err)
	}
	c.Run()

	if err := c.Connect(displayName); err != nil {
		log.Fatalf("send CLIENT_CONNECT: %v", err)
	}

	go printEvents(c)

	fmt.Println("Commands: chat <target|*> <text>, send <target> <path>, accept <transferId>, reject <transferId>, list, quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "quit":
			c.Shutdown("user quit")
			return
		case "chat":
			if len(fields) < 3 {
				fmt.Println("usage: chat <target|*> <text>")
				continue
			}
			target := fields[1]
			if target == "*" {
				target = ""
			}
			if err := c.SendChat(target, fields[2]); err != nil {
				fmt.Println("error:", err)
			}
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <target> <path>")
				continue
			}
			if err := c.SendFile(fields[1], fields[2]); err != nil {
				fmt.Println("error:", err)
			}
		case "accept":
			if len(fields) < 2 {
				fmt.Println("usage: accept <transferId>")
				continue
			}
			if err := c.AcceptDownload(fields[1], *downloadDir); err != nil {
				fmt.Println("error:", err)
			}
		case "reject":
			if len(fields) < 2 {
				fmt.Println("usage: reject <transferId>")
				continue
			}
			if err := c.RejectDownload(fields[1]); err != nil {
				fmt.Println("error:", err)
			}
		case "list":
			transfers := c.PendingTransfers()
			if len(transfers) == 0 {
				fmt.Println("no pending or active transfers")
				continue
			}
			for _, t := range transfers {
				fmt.Printf("%s %s %q (%s, %s)\n", t.Direction, t.TransferID, t.FileName, t.Target, t.Awaiting)
			}
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func printEvents(c *peerclient.Client) {
	for ev := range c.Events() {
		switch ev.Kind {
		case peerclient.EventClientIDAssigned:
			fmt.Printf("[you are %s]\n", ev.PeerID)
		case peerclient.EventChatReceived:
			fmt.Printf("<%s> %s\n", ev.From, ev.Content)
		case peerclient.EventErrorReceived:
			fmt.Printf("[error from %s] %s\n", ev.From, ev.Content)
		case peerclient.EventDownloadProposed:
			fmt.Printf("[#%d] incoming file %q (%s bytes) from %s, transfer %s — accept/reject it\n",
				ev.Ordinal, ev.FileName, humanBytes(ev.FileSize), ev.From, ev.TransferID)
		case peerclient.EventDownloadCompleted:
			fmt.Printf("download complete: %s (%s bytes)\n", ev.FileName, humanBytes(ev.Bytes))
		case peerclient.EventDownloadFailed:
			fmt.Printf("download failed: %s (%s)\n", ev.FileName, ev.Reason)
		case peerclient.EventDownloadTimedOut:
			fmt.Printf("download offer timed out: %s\n", ev.FileName)
		case peerclient.EventUploadConfirmed:
			fmt.Printf("upload %s confirmed, sending...\n", ev.TransferID)
		case peerclient.EventUploadCompleted:
			fmt.Printf("upload complete: transfer %s (%s bytes)\n", ev.TransferID, humanBytes(ev.Bytes))
		case peerclient.EventUploadFailed:
			fmt.Printf("upload failed: transfer %s (%s)\n", ev.TransferID, ev.Reason)
		}
	}
}

func humanBytes(n int64) string { return strconv.FormatInt(n, 10) }
