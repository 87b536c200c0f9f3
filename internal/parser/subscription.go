package parser

import "encoding/json"

// subscribeParams mirrors the Kraken v2 `{"method":"subscribe","params":{...}}`
// envelope. omitempty keeps the wire payload minimal per channel, matching
// the shape the teacher's krakenSubscribe/krakenSubParams pair used for v1.
type subscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol"`
	Depth    int      `json:"depth,omitempty"`
	Snapshot bool     `json:"snapshot,omitempty"`
	Token    string   `json:"token,omitempty"`
}

type subscribeEnvelope struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
}

// buildSubscription is shared by both Parser backends since the subscribe
// envelope is identical regardless of decode strategy.
func buildSubscription(channel string, symbols []string, opts SubscriptionOptions) (string, error) {
	params := subscribeParams{
		Channel: channel,
		Symbol:  symbols,
	}
	switch channel {
	case ChannelBook:
		params.Depth = opts.Depth
	case ChannelLevel3:
		params.Depth = opts.Depth
		params.Snapshot = true
		params.Token = opts.Token
	}

	env := subscribeEnvelope{Method: "subscribe", Params: params}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
