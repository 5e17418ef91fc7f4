package slack

import "github.com/Strob0t/Courier/internal/port/connector"

func init() {
	connector.Register(channelName, func(connector.Deps) (connector.Transformer, error) {
		return New(), nil
	})
}
