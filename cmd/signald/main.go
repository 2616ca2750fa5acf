// Signald: a relay signaling server for datastream peers.
//
// Peers connect at ws://<addr>/<id>. Each text frame names its destination in
// the "id" field; the server replaces it with the sender's id and forwards
// the frame.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/pterm/pterm"

	"github.com/1ureka/datastream/internal/signaling"
	"github.com/1ureka/datastream/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", "127.0.0.1:8000", "Listen address (use :8000 for all interfaces)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	srv := signaling.NewServer(util.NewLogger())
	bound, err := srv.Start(*addr)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	pterm.Info.Println("Signaling relay listening on ws://" + bound.String() + "/<id>")

	<-ctx.Done()

	if err := srv.Close(); err != nil {
		util.LogError("failed to close relay: %v", err)
		os.Exit(1)
	}
	util.LogInfo("relay stopped")
}
