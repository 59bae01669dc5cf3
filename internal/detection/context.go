package detection

import (
	"context"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/internal/inventory"
	"github.com/wardenhq/warden/internal/player"
	"github.com/wardenhq/warden/internal/riskscore"
	"github.com/wardenhq/warden/internal/ruleconfig"
	"github.com/wardenhq/warden/internal/sessions"
	"github.com/wardenhq/warden/internal/telemetry"
)

// inventoryWindow is how many recent inventory adds the duplication rule
// inspects.
const inventoryWindow = 10

// ContextBuilder assembles the per-invocation DetectionContext from the
// injected stores. It is stateless and safe for concurrent use.
type ContextBuilder struct {
	logs      telemetry.Store
	players   player.Store
	scores    riskscore.Store
	sessions  sessions.Store
	inventory inventory.Store

	// historyWindow bounds how many recent logs are fetched per player.
	historyWindow int
}

// NewContextBuilder creates a context builder over the given stores.
// historyWindow bounds the recent-log fetch; values <= 0 default to 100.
func NewContextBuilder(
	logs telemetry.Store,
	players player.Store,
	scores riskscore.Store,
	sessionStore sessions.Store,
	inventoryStore inventory.Store,
	historyWindow int,
) *ContextBuilder {
	if historyWindow <= 0 {
		historyWindow = 100
	}
	return &ContextBuilder{
		logs:          logs,
		players:       players,
		scores:        scores,
		sessions:      sessionStore,
		inventory:     inventoryStore,
		historyWindow: historyWindow,
	}
}

// Build fetches everything the rules need for one log entry. A missing log
// entry surfaces as telemetry.ErrNotFound; a missing player profile or risk
// score is not an error (new players have neither).
func (b *ContextBuilder) Build(ctx context.Context, logID string, cfg map[string]any) (*DetectionContext, error) {
	entry, err := b.logs.GetByID(ctx, logID)
	if err != nil {
		if errors.Is(err, telemetry.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load log entry: %w", err)
	}

	recent, err := b.logs.ListRecent(ctx, entry.PlayerID, b.historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent logs: %w", err)
	}

	profile, err := b.players.GetByID(ctx, entry.PlayerID)
	if err != nil && !errors.Is(err, player.ErrNotFound) {
		return nil, fmt.Errorf("failed to load player profile: %w", err)
	}

	score, err := b.scores.Get(ctx, entry.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load risk score: %w", err)
	}

	dc := &DetectionContext{
		PlayerID:   entry.PlayerID,
		ActionType: entry.ActionType,
		LogEntry:   entry,
		RecentLogs: recent,
		Profile:    profile,
		RiskScore:  score,
		Config:     cfg,
	}

	if entry.DeviceFingerprint != "" {
		others, err := b.sessions.ListOtherPlayers(ctx, entry.DeviceFingerprint, entry.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load device sessions: %w", err)
		}
		dc.OtherPlayersOnDevice = others
	}

	adds, err := b.inventory.ListRecent(ctx, entry.PlayerID, inventory.ChangeAdd, inventoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory history: %w", err)
	}
	for _, change := range adds {
		dc.RecentInventoryAdds = append(dc.RecentInventoryAdds, change.ItemID)
	}

	return dc, nil
}

// LoadConfig fetches the enabled rule configuration fresh for one
// invocation, layering stored values over the baked-in defaults. A store
// failure aborts the invocation with ErrConfigUnavailable.
func LoadConfig(ctx context.Context, store ruleconfig.Store) (map[string]any, error) {
	stored, err := store.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}
	cfg := ruleconfig.Defaults()
	for key, value := range stored {
		cfg[key] = value
	}
	return cfg, nil
}
