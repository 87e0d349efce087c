//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/Altmerian/jackpot/config"
	appwire "github.com/Altmerian/jackpot/wire"
)

func initializeRuntime(cfg *config.Config) (*appwire.Runtime, func(), error) {
	wire.Build(appwire.FullSet)
	return nil, nil, nil
}
