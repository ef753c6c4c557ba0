// internal/service/webhook/router.go
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"
	xerrors "wakili-service/internal/pkg/errors"
	"wakili-service/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Outcome classifies how a delivery was handled. Every outcome except
// OutcomeRejected is acknowledged with 200 so the gateway stops redelivering.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeUnroutable Outcome = "unroutable"
	OutcomeRejected   Outcome = "rejected"
	OutcomeError      Outcome = "error"
)

// ErrBadSignature rejects a delivery before any decoding happens.
var ErrBadSignature = errors.New("webhook signature mismatch")

// envelope is the outer wire shape of every gateway delivery.
type envelope struct {
	Token string          `json:"token"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

// Applier is the slice of the lifecycle engine the router dispatches into.
type Applier interface {
	ApplyWebhookEvent(ctx context.Context, evt *billing.GatewayEvent) error
}

// Router runs the webhook pipeline: signature over the raw bytes, envelope
// parse, kind normalization, a Redis fast-path for replays, then the engine.
// The durable replay guard is the unique event token in Postgres; Redis only
// spares the database the hot duplicates.
type Router struct {
	engine Applier
	secret []byte
	rdb    *redis.Client
	logger *zap.Logger

	dedupTTL time.Duration
}

func NewRouter(engine Applier, secret []byte, rdb *redis.Client, logger *zap.Logger) *Router {
	return &Router{
		engine:   engine,
		secret:   secret,
		rdb:      rdb,
		logger:   logger,
		dedupTTL: 24 * time.Hour,
	}
}

// Handle processes one raw delivery. rawBody must be the exact bytes received.
func (r *Router) Handle(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	if !gateway.VerifySignature(rawBody, signature, r.secret) {
		metrics.WebhookEvents.WithLabelValues("unknown", string(OutcomeRejected)).Inc()
		return OutcomeRejected, ErrBadSignature
	}

	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", string(OutcomeRejected)).Inc()
		return OutcomeRejected, fmt.Errorf("malformed webhook envelope: %w", err)
	}

	kind, ok := billing.CanonicalEventKind(env.Type)
	if !ok {
		r.logger.Info("webhook event kind not handled",
			zap.String("type", env.Type),
			zap.String("token", env.Token),
		)
		metrics.WebhookEvents.WithLabelValues("unknown", string(OutcomeUnroutable)).Inc()
		return OutcomeUnroutable, nil
	}

	if r.seenRecently(ctx, env.Token) {
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	evt, err := billing.DecodeEvent(kind, env.Token, env.Data)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeRejected)).Inc()
		return OutcomeRejected, err
	}

	err = r.engine.ApplyWebhookEvent(ctx, evt)
	switch {
	case err == nil:
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeApplied)).Inc()
		return OutcomeApplied, nil
	case xerrors.Is(err, xerrors.ErrDuplicateEntry):
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	case xerrors.Is(err, xerrors.ErrNotFound):
		// No matching subscription: the checkout may have raced the local
		// insert, or the event belongs to another system. Ack and move on.
		r.logger.Warn("webhook event matched no subscription",
			zap.String("kind", kind),
			zap.String("token", env.Token),
		)
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeUnroutable)).Inc()
		return OutcomeUnroutable, nil
	default:
		r.forget(ctx, env.Token)
		metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeError)).Inc()
		return OutcomeError, err
	}
}

// seenRecently claims the token in Redis. A nil client or a Redis error never
// blocks processing; Postgres still catches the replay.
func (r *Router) seenRecently(ctx context.Context, token string) bool {
	if r.rdb == nil || token == "" {
		return false
	}
	ok, err := r.rdb.SetNX(ctx, "webhook:evt:"+token, 1, r.dedupTTL).Result()
	if err != nil {
		r.logger.Warn("webhook dedup cache unavailable", zap.Error(err))
		return false
	}
	return !ok
}

// forget releases the Redis claim after a processing error so the gateway's
// redelivery is not mistaken for a replay.
func (r *Router) forget(ctx context.Context, token string) {
	if r.rdb == nil || token == "" {
		return
	}
	if err := r.rdb.Del(ctx, "webhook:evt:"+token).Err(); err != nil {
		r.logger.Warn("failed to release webhook dedup claim", zap.Error(err))
	}
}
