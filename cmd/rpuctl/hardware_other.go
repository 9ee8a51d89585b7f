//go:build !linux

package main

import (
	"errors"

	"github.com/go-logr/logr"

	"github.com/jangala-dev/tinygo-nrf70bus/config"
)

func openHardware(config.Board, logr.Logger) (*hardware, error) {
	return nil, errors.New("hardware backends are only available on linux; use -sim")
}
