package orchestrator

import (
	"context"
	"log"

	"github.com/antoniostano/casepilot/internal/dispatch"
	"github.com/antoniostano/casepilot/internal/intent"
)

// CardFetcher fetches a worker's capability descriptor.
type CardFetcher interface {
	DiscoverCard(ctx context.Context, workerURL string, attempts int) (dispatch.Card, error)
}

// DiscoverWorkers builds the routing table by fetching each worker's card
// once at startup. An unreachable worker is logged and skipped rather than
// blocking startup; its action kinds simply fall back to the direct backend.
// The first worker to claim an action kind keeps it.
func DiscoverWorkers(ctx context.Context, fetcher CardFetcher, urls []string, attempts int) map[string]intent.Worker {
	table := make(map[string]intent.Worker)
	for _, url := range urls {
		card, err := fetcher.DiscoverCard(ctx, url, attempts)
		if err != nil {
			log.Printf("orchestrator: skipping worker %s: %v", url, err)
			continue
		}
		for _, kind := range card.SupportedActions {
			if !intent.KnownAction(kind) {
				log.Printf("orchestrator: worker %s claims unknown action %q, ignoring", card.Name, kind)
				continue
			}
			if _, taken := table[kind]; taken {
				log.Printf("orchestrator: action %q already routed, ignoring claim by %s", kind, card.Name)
				continue
			}
			if card.RequiresApproval != intent.SideEffecting(kind) {
				log.Printf("orchestrator: worker %s declares requires_approval=%t for %q, allow-list wins", card.Name, card.RequiresApproval, kind)
			}
			table[kind] = intent.Worker{Name: card.Name, URL: url, RequiresApproval: card.RequiresApproval}
		}
		log.Printf("orchestrator: discovered worker %s at %s (%d action kinds)", card.Name, url, len(card.SupportedActions))
	}
	return table
}
