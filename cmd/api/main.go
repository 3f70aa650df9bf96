package main

import (
	"fmt"
	"net/http"
	"os"

	"triage/internal/api"
	"triage/internal/config"
	"triage/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	handlers := api.New(db)
	fmt.Printf("read api listening on %s\n", cfg.APIAddr)
	must(http.ListenAndServe(cfg.APIAddr, handlers.Routes()))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
