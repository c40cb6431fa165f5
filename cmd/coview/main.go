package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tomaslejdung/coview/pkg/config"
	"github.com/tomaslejdung/coview/pkg/presence"
	"github.com/tomaslejdung/coview/pkg/rtc"
	"github.com/tomaslejdung/coview/pkg/session"
	"github.com/tomaslejdung/coview/pkg/settings"
	"github.com/tomaslejdung/coview/pkg/viewer"
)

// Flags holds runtime options
type Flags struct {
	Join    string
	Name    string
	Store   string
	Present bool
	Help    bool

	// TURN server configuration
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

func parseFlags() Flags {
	flags := Flags{}

	flag.StringVar(&flags.Join, "join", "", "Session code to join (new session if empty)")
	flag.StringVar(&flags.Join, "j", "", "Session code to join (shorthand)")

	flag.StringVar(&flags.Name, "name", "", "Display name shown to other clients")
	flag.StringVar(&flags.Store, "store", "", "Store server URL (overrides settings)")

	flag.BoolVar(&flags.Present, "present", false, "Start presenting immediately")

	// TURN server flags
	flag.StringVar(&flags.TURNServer, "turn", "", "TURN server URL (e.g., turn:turn.example.com:3478)")
	flag.StringVar(&flags.TURNUser, "turn-user", "", "TURN server username")
	flag.StringVar(&flags.TURNPass, "turn-pass", "", "TURN server password")
	flag.BoolVar(&flags.ForceRelay, "force-relay", false, "Force TURN relay (disable direct P2P)")

	flag.BoolVar(&flags.Help, "help", false, "Show help")
	flag.BoolVar(&flags.Help, "h", false, "Show help (shorthand)")

	flag.Parse()
	return flags
}

func printHelp() {
	fmt.Println(`coview - follow a presenter's camera and selection in a shared 3D viewer

Usage:
  coview                     Start a new session
  coview -join GOLD-PRISM-07 Join an existing session
  coview -present            Start a session and present immediately

Sessions rendezvous through a shared blob store; run 'storeserver' or
point COVIEW_STORE_BACKEND at redis/minio for real deployments.`)
}

func main() {
	flags := parseFlags()
	if flags.Help {
		printHelp()
		return
	}

	userSettings, err := settings.Load()
	if err != nil {
		log.Printf("Settings load failed, using defaults: %v", err)
	}
	if flags.Name != "" {
		userSettings.DisplayName = flags.Name
	}
	if flags.Store != "" {
		userSettings.StoreURL = flags.Store
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}
	if flags.Store != "" {
		cfg.Backend = config.BackendHTTP
		cfg.HTTP.URL = flags.Store
	} else if cfg.Backend == config.BackendHTTP && userSettings.StoreURL != "" {
		cfg.HTTP.URL = userSettings.StoreURL
	}

	st, err := cfg.BuildStore()
	if err != nil {
		log.Fatalf("Store setup failed: %v", err)
	}

	code := session.NormalizeSessionCode(flags.Join)
	if code == "" {
		code = session.GenerateSessionCode()
	} else if !session.ValidateSessionCode(code) {
		log.Fatalf("Invalid session code: %s", code)
	}

	userSettings.LastSessionCode = code
	if err := settings.Save(userSettings); err != nil {
		log.Printf("Settings save failed: %v", err)
	}

	dialer := rtc.NewPionDialer(rtc.ICEConfig{
		TURNServer: flags.TURNServer,
		TURNUser:   flags.TURNUser,
		TURNPass:   flags.TURNPass,
		ForceRelay: flags.ForceRelay,
	})

	demoViewer := viewer.NewDemoViewer()

	sess := session.New(session.Config{
		SessionCode: code,
		DisplayName: userSettings.DisplayName,
	}, presence.NewClient(st, session.BlobKey(code)), dialer, demoViewer)
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sess.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Session loop ended: %v", err)
		}
	}()

	if flags.Present {
		demoViewer.SetOrbiting(true)
		if err := sess.Present(ctx); err != nil {
			log.Fatalf("Present failed: %v", err)
		}
	}

	if err := RunTUI(ctx, sess, demoViewer); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
}
