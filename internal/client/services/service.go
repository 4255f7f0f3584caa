// Package services implements the entity-level operations the UI calls:
// tasks, columns and users over the sync orchestrator, with ownership and
// visibility rules enforced before anything is written.
//
// Mutation helpers that the UI treats as fire-and-forget (archive, share,
// comments and the like) swallow lower-level failures, log them and report a
// boolean; the UI owns user-visible messaging. Operations with data to
// return surface errors normally.
package services

import (
	"context"
	"encoding/json"

	"github.com/KossiPascal/atlas-kanban/internal/client/realtime"
	"github.com/KossiPascal/atlas-kanban/internal/client/syncer"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// Subscriber registers realtime event handlers. Implemented by
// realtime.Channel.
type Subscriber interface {
	On(event string, h realtime.Handler)
}

// visibleToPrincipal reports whether a record may be read by p: admins see
// everything, owners see their own, and tasks extend visibility to assignees
// and share targets.
func visibleToPrincipal(p syncer.Principal, r models.Record) bool {
	if p.Admin || r.Owner == p.UserID {
		return true
	}
	for _, field := range []string{"assignTo", "sharedWith"} {
		var stamps map[string]models.Stamp
		if raw := r.Field(field); raw != nil {
			if err := json.Unmarshal(raw, &stamps); err == nil {
				if _, ok := stamps[p.UserID]; ok {
					return true
				}
			}
		}
	}
	return false
}

// canMutate reports whether p may modify a record it can see.
func canMutate(p syncer.Principal, r models.Record) bool {
	return p.Admin || r.Owner == p.UserID
}

// resync registers a handler that reconciles a table whenever any of its
// events arrives from the server. Handlers run on the websocket read loop,
// so the sync itself moves to its own goroutine.
func resync(ctx context.Context, sub Subscriber, o *syncer.Orchestrator, table models.Table, log logging.Logger) {
	if sub == nil {
		return
	}
	sub.On(string(table)+":*", func(json.RawMessage) {
		go func() {
			if err := o.SyncTable(ctx, table); err != nil {
				log.Debug(ctx, "event-triggered sync failed", "table", table, "error", err)
			}
		}()
	})
}
