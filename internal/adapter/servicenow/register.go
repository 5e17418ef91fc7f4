package servicenow

import "github.com/Strob0t/Courier/internal/port/connector"

func init() {
	connector.Register(channelName, func(deps connector.Deps) (connector.Transformer, error) {
		return New(deps.Setting("servicenow.caller_id", DefaultCallerID)), nil
	})
}
