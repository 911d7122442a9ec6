package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// LinkingRunSummaryMessage is the payload published to the ops topic after a
// linking run completes. Consumers (alerting, dashboards) are out of scope.
type LinkingRunSummaryMessage struct {
	CorrelationId string    `json:"correlation_id"`
	Success       bool      `json:"success"`
	TotalLinked   int       `json:"total_linked"`
	TotalSkipped  int       `json:"total_skipped"`
	TotalErrors   int       `json:"total_errors"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials (Cloud Run service account or
		// GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	return c, nil
}

// PublishLinkingRunSummary publishes a run summary to LINKING_SUMMARY_TOPIC.
// Best-effort: a summary that cannot be published is logged and dropped; the
// run result itself is already returned to the caller.
func PublishLinkingRunSummary(ctx context.Context, msg *LinkingRunSummaryMessage) error {
	topicID := os.Getenv("LINKING_SUMMARY_TOPIC")
	if topicID == "" {
		return errors.New("LINKING_SUMMARY_TOPIC not set")
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	result := client.Topic(topicID).Publish(pubCtx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"correlation_id": msg.CorrelationId,
		},
	})
	id, err := result.Get(pubCtx)
	if err != nil {
		return err
	}
	log.Printf("published linking run summary message_id=%s correlation_id=%s", id, msg.CorrelationId)
	return nil
}
