package service

import (
	"context"

	"github.com/aegis-ops/console/internal/conversation"
	"github.com/aegis-ops/console/internal/model"
	"github.com/aegis-ops/console/internal/reducer"
	"github.com/aegis-ops/console/pkg/logger"
)

// Console groups the registries of every conversation kind. The kinds share
// nothing mutable.
type Console struct {
	ChatOps *Registry[model.ChatOpsResult]
	RCA     *Registry[model.RCAResult]
	Predict *Registry[model.PredictResult]
}

// Streamers selects the agent backend of each kind.
type Streamers struct {
	ChatOps conversation.Streamer
	RCA     conversation.Streamer
	Predict conversation.Streamer
}

// NewConsole creates the three registries. journal may be nil.
func NewConsole(ctx context.Context, s Streamers, journal conversation.Journal, log *logger.Logger) *Console {
	log = log.Named("views")
	return &Console{
		ChatOps: NewRegistry[model.ChatOpsResult](ctx, reducer.ChatOps{}, s.ChatOps, journal, log),
		RCA:     NewRegistry[model.RCAResult](ctx, reducer.RCA{}, s.RCA, journal, log),
		Predict: NewRegistry[model.PredictResult](ctx, reducer.Predict{}, s.Predict, journal, log),
	}
}

// Counts returns the number of views per kind.
func (c *Console) Counts() map[model.Kind]int {
	return map[model.Kind]int{
		model.KindChatOps: c.ChatOps.Len(),
		model.KindRCA:     c.RCA.Len(),
		model.KindPredict: c.Predict.Len(),
	}
}

// Close closes every view of every kind.
func (c *Console) Close() {
	c.ChatOps.Close()
	c.RCA.Close()
	c.Predict.Close()
}
