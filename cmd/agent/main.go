package main // Entry point of the local sync agent

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv" // .env loader for local development

	"github.com/iliyamo/termin-manager/internal/config"
	"github.com/iliyamo/termin-manager/internal/remote"
	"github.com/iliyamo/termin-manager/internal/state"
	"github.com/iliyamo/termin-manager/internal/store"
	"github.com/iliyamo/termin-manager/internal/sync"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadAgent()

	local, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	states := state.New(local, state.Options{
		MaxLocalBackups: cfg.MaxLocalBackups,
		ReadVerify:      cfg.ReadVerify,
		LegacyDir:       cfg.LegacyDir,
	})

	// Without a remote URL the agent still runs: edits persist locally and
	// queue up for whenever a remote is configured.
	var client remote.Client
	if cfg.RemoteURL != "" {
		client = remote.NewHTTPClient(cfg.RemoteURL, cfg.RemoteToken)
	}

	engine := sync.New(states, local, client, sync.Options{
		Debounce: cfg.SyncDebounce,
		Notify: func(kind, message string) {
			log.Printf("notify(%s): %s", kind, message)
		},
	})
	defer engine.Close()

	ctx := context.Background()
	s, err := states.GetState(ctx)
	if err != nil {
		log.Fatalf("state: %v", err)
	}
	log.Printf("loaded state: %d slots, %d bookings (store v%d)", len(s.Slots), len(s.Bookings), s.Meta.StoreVersion)

	if client != nil {
		if err := engine.Connect(ctx); err != nil {
			log.Printf("cloud connect failed, staying offline: %v", err)
		}
	}
	if cfg.ActiveOrgID != "" {
		if _, err := states.SetActiveOrg(ctx, cfg.ActiveOrgID); err != nil {
			log.Printf("selecting org %s failed: %v", cfg.ActiveOrgID, err)
		} else if err := engine.PullLatestFromServer(ctx); err != nil {
			log.Printf("pull for org %s failed: %v", cfg.ActiveOrgID, err)
		}
	}
	engine.ScheduleSync(0)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("shutting down; queued changes stay in %s", cfg.DataDir)
}
