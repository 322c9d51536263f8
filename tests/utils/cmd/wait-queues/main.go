// wait-queues blocks until the named storage queues drain. CI uses it to
// know the archiver has caught up before asserting on the read model.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

func main() {
	log.SetOutput(os.Stderr)
	var (
		connStr        string
		queues         string
		timeout        time.Duration
		interval       time.Duration
		stableRequired int
	)
	flag.StringVar(&connStr, "connection-string", os.Getenv("STORAGE_CONNECTION_STRING"), "Azure Storage connection string")
	flag.StringVar(&queues, "queues", os.Getenv("ARCHIVE_QUEUE"), "comma-separated queue names to monitor")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "maximum time to wait for queues to drain")
	flag.DurationVar(&interval, "interval", 2*time.Second, "polling interval")
	flag.IntVar(&stableRequired, "stable", 3, "consecutive empty polls required per queue")
	flag.Parse()

	if connStr == "" {
		log.Fatal("connection string is required")
	}
	names := splitQueues(queues)
	if len(names) == 0 {
		log.Fatal("at least one queue must be specified")
	}

	clients := make(map[string]*azqueue.QueueClient, len(names))
	for _, name := range names {
		client, err := newQueueClient(connStr, name)
		if err != nil {
			log.Fatalf("client for %s: %v", name, err)
		}
		clients[name] = client
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := waitForDrain(ctx, interval, stableRequired, clients); err != nil {
		log.Fatalf("queue wait failed: %v", err)
	}
	log.Printf("all queues drained")
}

func splitQueues(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func newQueueClient(connStr, name string) (*azqueue.QueueClient, error) {
	clientOpts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    30 * time.Second,
				RetryDelay:    time.Second,
				MaxRetryDelay: 5 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	return azqueue.NewQueueClientFromConnectionString(connStr, name, &clientOpts)
}

// waitForDrain polls until every queue reports zero messages for
// stableRequired consecutive polls. The approximate count can briefly read
// zero while the archiver still holds a message, hence the stability
// window.
func waitForDrain(ctx context.Context, interval time.Duration, stableRequired int, clients map[string]*azqueue.QueueClient) error {
	if stableRequired < 1 {
		stableRequired = 1
	}
	stable := make(map[string]int, len(clients))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("waiting for %d queue(s) to drain", len(clients))
	for {
		allStable := true
		for name, client := range clients {
			resp, err := client.GetProperties(ctx, nil)
			if err != nil {
				return fmt.Errorf("properties for %s: %w", name, err)
			}
			var count int32
			if resp.ApproximateMessagesCount != nil {
				count = *resp.ApproximateMessagesCount
			}
			if count > 0 {
				log.Printf("queue %s has %d pending message(s)", name, count)
				stable[name] = 0
				allStable = false
				continue
			}
			if stable[name]++; stable[name] < stableRequired {
				allStable = false
			}
		}
		if allStable {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
