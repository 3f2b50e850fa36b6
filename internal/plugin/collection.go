package plugin

import (
	"context"
	"errors"

	"github.com/robceliesius/plugin-ably/internal/token"
)

// CollectionModeDynamic is the only mode that fetches data.
const CollectionModeDynamic = "dynamic"

// CollectionConfig selects the channel history a collection exposes.
type CollectionConfig struct {
	ChannelName string `json:"channelName" mapstructure:"channelName"`
	Limit       int    `json:"limit" mapstructure:"limit"`
	Direction   string `json:"direction" mapstructure:"direction"`
	Start       any    `json:"start,omitempty" mapstructure:"start"`
	End         any    `json:"end,omitempty" mapstructure:"end"`
}

// Collection is a host data source bound to channel history.
type Collection struct {
	Mode   string           `json:"mode"`
	Config CollectionConfig `json:"config"`
}

type CollectionError struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// CollectionResult carries either data or an error, never both.
type CollectionResult struct {
	Data  any              `json:"data"`
	Error *CollectionError `json:"error"`
}

// FetchCollection returns a history page for a dynamic collection. Failures
// are reported in the result, not as an error.
func (p *Plugin) FetchCollection(ctx context.Context, c Collection) CollectionResult {
	if c.Mode != CollectionModeDynamic {
		return CollectionResult{}
	}
	if c.Config.ChannelName == "" {
		return CollectionResult{Error: &CollectionError{Message: "Channel name is required"}}
	}

	p.log.Info().Str("channel", c.Config.ChannelName).Int("limit", c.Config.Limit).Str("direction", c.Config.Direction).Msg("fetching channel history")

	history, err := p.GetChannelHistory(ctx, ChannelHistoryParams{
		ChannelName: c.Config.ChannelName,
		Limit:       c.Config.Limit,
		Direction:   c.Config.Direction,
		Start:       c.Config.Start,
		End:         c.Config.End,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("collection fetch failed")
		res := &CollectionError{Message: err.Error()}
		var fetchErr *token.TokenFetchError
		if errors.As(err, &fetchErr) {
			res.Details = fetchErr.Details()
		}
		return CollectionResult{Error: res}
	}
	return CollectionResult{Data: history}
}
