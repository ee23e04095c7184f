// Package insight hands change context to the external narrative writer.
package insight

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// MaxContextRunes bounds each text excerpt sent with a request.
const MaxContextRunes = 2000

// Requester publishes insight requests to a topic consumed by the narrative writer.
type Requester struct {
	publisher watch.Publisher
	topic     string
	logger    *zap.Logger
}

var _ watch.InsightWriter = (*Requester)(nil)

// New constructs a Requester.
func New(publisher watch.Publisher, topic string, logger *zap.Logger) *Requester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Requester{publisher: publisher, topic: topic, logger: logger.Named("insight")}
}

// RequestInsight publishes the request with its text excerpts clipped.
func (r *Requester) RequestInsight(ctx context.Context, req watch.InsightRequest) error {
	req.PrevText = clip(req.PrevText)
	req.CurrentText = clip(req.CurrentText)
	id, err := r.publisher.Publish(ctx, r.topic, req)
	if err != nil {
		return fmt.Errorf("publish insight request: %w", err)
	}
	r.logger.Debug("insight requested",
		zap.String("alert_id", req.Alert.ID),
		zap.String("message_id", id),
	)
	return nil
}

func clip(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxContextRunes {
		return s
	}
	return string(runes[:MaxContextRunes])
}

// Noop discards insight requests.
type Noop struct{}

// RequestInsight does nothing.
func (Noop) RequestInsight(context.Context, watch.InsightRequest) error {
	return nil
}
