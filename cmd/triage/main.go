package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triage/internal/classify"
	"triage/internal/config"
	imapconnector "triage/internal/connectors/imap"
	"triage/internal/embed"
	"triage/internal/listener"
	"triage/internal/ocr"
	"triage/internal/pipeline"
	"triage/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	session, err := imapconnector.NewSessionManager(cfg)
	must(err)
	defer session.Close()

	classifier, err := classify.New(cfg)
	must(err)

	embedder, err := embed.NewProvider(cfg)
	must(err)

	var ocrReader pipeline.OCRReader
	if cfg.OCRAPIKey != "" {
		ocrReader = ocr.NewClient(cfg)
	} else {
		fmt.Println("OCR_API_KEY not set, image attachments will be skipped")
	}

	normalizer := pipeline.NewNormalizer(ocrReader)
	pipe := pipeline.New(embedder, db, cfg.DuplicateThreshold, cfg.SearchCandidates, cfg.SearchTopK)
	svc := listener.NewService(session, normalizer, classifier, pipe, time.Duration(cfg.PollIntervalSec)*time.Second)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(session.Connect())
	fmt.Printf("monitoring %s for %s\n", cfg.Mailbox, cfg.IMAPUser)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
