package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/archiver"
	"github.com/adamwitko/retro/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("retro archiver starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	retroTable := os.Getenv("RETROS_TABLE")
	archiveQueue := os.Getenv("ARCHIVE_QUEUE")
	if connStr == "" || retroTable == "" || archiveQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, retroTable, archiveQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.StandardLogger()
	proc := archiver.NewProcessor(store, logger)

	ctx := context.Background()
	for {
		msg, err := store.Dequeue(ctx)
		if err != nil {
			logger.Errorf("dequeue: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			time.Sleep(time.Second)
			continue
		}
		if err := proc.Process(ctx, *msg.MessageText); err != nil {
			// Poison messages are logged and consumed; retrying them
			// cannot succeed.
			logger.Errorf("process message %s: %v", *msg.MessageID, err)
		}
		if err := store.Delete(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
			logger.Errorf("delete message %s: %v", *msg.MessageID, err)
		}
	}
}
