package postgres

import "go.uber.org/fx"

// Module provides postgres repository dependencies
var Module = fx.Module("repository",
	fx.Provide(
		NewCredentialRepository,
		NewChatRepository,
	),
)
