package gateway

import (
	ideclient "github.com/uber/cibridge/src/cibridge/gateway/ide-client"
	"go.uber.org/fx"
)

// Module provides the outbound connections to IDEs.
var Module = fx.Provide(ideclient.New)
