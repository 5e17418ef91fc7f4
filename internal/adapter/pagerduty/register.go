package pagerduty

import "github.com/Strob0t/Courier/internal/port/connector"

func init() {
	connector.Register(channelName, func(deps connector.Deps) (connector.Transformer, error) {
		return New(deps.Setting("pagerduty.api_url", DefaultAPIURL)), nil
	})
}
