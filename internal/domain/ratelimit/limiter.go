package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Limiter enforces per-identifier sliding windows over a shared Store.
type Limiter struct {
	store  Store
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewLimiter creates a limiter over the given store.
func NewLimiter(store Store, logger *slog.Logger) *Limiter {
	return &Limiter{store: store, logger: logger, now: time.Now}
}

// Identifier builds the rate-limit key components for a request.
// Components resolve in the configured order:
//
//	IP   -> client IP, or "unknown"
//	USER -> x-user-id header, falling back to client IP, then "unknown"
//	TOOL -> tool name
func Identifier(cfg Config, ip string, headers map[string]string, tool string) string {
	parts := make([]string, 0, len(cfg.IdentifierTypes))
	for _, it := range cfg.IdentifierTypes {
		switch it {
		case IdentifierIP:
			parts = append(parts, orUnknown(ip))
		case IdentifierUser:
			user := headers["x-user-id"]
			if user == "" {
				user = ip
			}
			parts = append(parts, orUnknown(user))
		case IdentifierTool:
			parts = append(parts, tool)
		}
	}
	return FormatKey(parts)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Check applies the sliding-window counter protocol for one request.
//
// Store failures fail open: the request is allowed and the error is
// logged, never surfaced to the caller.
func (l *Limiter) Check(ctx context.Context, cfg Config, key, tool string) Result {
	now := l.now().UnixMilli()
	window := time.Duration(cfg.WindowSeconds) * time.Second

	allowed := Result{Allowed: true, Tool: tool, Limit: cfg.Limit}

	raw, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Error("rate limit store read failed, allowing", "key", key, "error", err)
		return allowed
	}

	var cell Cell
	if found {
		if err := json.Unmarshal(raw, &cell); err != nil {
			l.logger.Warn("corrupt rate limit cell, resetting", "key", key, "error", err)
			found = false
		}
	}

	// New window: absent cell or the stored window has elapsed.
	if !found || now > cell.ResetAt {
		cell = Cell{Count: 1, ResetAt: now + int64(cfg.WindowSeconds)*1000}
		l.write(ctx, key, cell, window)
		allowed.Count = 1
		allowed.ResetAt = cell.ResetAt
		return allowed
	}

	if cell.Count >= cfg.Limit {
		resetIn := int((cell.ResetAt - now + 999) / 1000)
		if resetIn < 1 {
			resetIn = 1
		}
		return Result{
			Allowed:        false,
			Tool:           tool,
			Count:          cell.Count,
			Limit:          cfg.Limit,
			ResetAt:        cell.ResetAt,
			ResetInSeconds: resetIn,
		}
	}

	cell.Count++
	remaining := time.Duration(cell.ResetAt-now) * time.Millisecond
	ttl := remaining.Truncate(time.Second)
	if ttl < remaining {
		ttl += time.Second
	}
	l.write(ctx, key, cell, ttl)

	allowed.Count = cell.Count
	allowed.ResetAt = cell.ResetAt
	return allowed
}

// write persists a cell, logging (not surfacing) store failures.
func (l *Limiter) write(ctx context.Context, key string, cell Cell, ttl time.Duration) {
	raw, err := json.Marshal(cell)
	if err != nil {
		l.logger.Error("failed to marshal rate limit cell", "key", key, "error", err)
		return
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := l.store.Set(ctx, key, raw, ttl); err != nil {
		l.logger.Error("rate limit store write failed", "key", key, "error", err)
	}
}

// BlockReason renders the user-visible reason for a rate-limit block.
func BlockReason(r Result) string {
	return fmt.Sprintf("Rate limit exceeded for tool %q: retry in %d seconds", r.Tool, r.ResetInSeconds)
}
