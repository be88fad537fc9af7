//go:build wireinject
// +build wireinject

package main

import (
	"context"

	"github.com/google/wire"
)

// BuildApp wires the server components using Google Wire.
func BuildApp(ctx context.Context) (*App, error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideCatalog,
		provideHub,
		provideBus,
		provideBoard,
		provideCollector,
		provideAnalytics,
		provideMetrics,
		provideStorage,
		provideNotifier,
		provideTiers,
		provideCalculator,
		provideValidator,
		provideEvaluator,
		provideRedeemer,
		provideGuard,
		provideOrchestrator,
		provideSweeper,
		provideHandler,
		provideServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil
}
