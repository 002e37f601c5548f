package main

import (
	"log"

	"tabflow/internal/config"
	"tabflow/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	app, err := ui.NewApp(cfg)
	if err != nil {
		log.Fatal("failed to create app: ", err)
	}

	log.Printf("starting tabflow on http://localhost:%s", cfg.Server.Port)
	log.Fatal(app.Start())
}
