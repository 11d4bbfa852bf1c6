package usecase

import "go.uber.org/fx"

// Module provides usecase dependencies
var Module = fx.Module("usecase",
	fx.Provide(
		NewChatRegistry,
		NewDispatcher,
		NewOperatorUseCase,
	),
)
