package main

import (
	"context"
	"errors"
	"log"

	corecmd "github.com/m3rciful/kaoribot/core/cmd"
	"github.com/m3rciful/kaoribot/internal/app"
	"github.com/m3rciful/kaoribot/internal/config"
)

var errUnexpectedConfig = errors.New("kaoribot: unexpected config type")

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			cfg, ok := c.(*config.Config)
			if !ok {
				return nil, errUnexpectedConfig
			}
			a, err := app.New(context.Background(), cfg)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
