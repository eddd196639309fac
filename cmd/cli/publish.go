package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/Bhogyaan/threads/backend/internal/database"
	"github.com/Bhogyaan/threads/backend/internal/eventbus"
	"github.com/Bhogyaan/threads/backend/internal/middleware"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <eventType> [file]",
	Short: "Publish a domain event to the realtime server",
	Long: `Wrap the JSON data in file (or stdin) in an event envelope and deliver it.

--via http posts to the server's ingest endpoint with the internal token.
--via redis, kafka or postgres publish on the shared event bus, reading
REDIS_HOST, KAFKA_BROKERS or DATABASE_URL from the environment.

Examples:
  echo '{"postId":"p1"}' | threads-rt publish postBanned
  threads-rt publish newComment comment.json --via redis --key p1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		via, _ := cmd.Flags().GetString("via")
		key, _ := cmd.Flags().GetString("key")
		channel, _ := cmd.Flags().GetString("channel")
		file := "-"
		if len(args) == 2 {
			file = args[1]
		}
		return publishEvent(cmd.Context(), args[0], file, via, key, channel)
	},
}

func init() {
	publishCmd.Flags().String("via", "http", "Delivery path: http, redis, kafka or postgres")
	publishCmd.Flags().String("key", "", "Ordering key (post or conversation id) for kafka")
	publishCmd.Flags().String("channel", eventbus.DefaultChannel, "Redis/Postgres channel or Kafka topic")
}

func readData(file string) (json.RawMessage, error) {
	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read event data: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("event data is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func publishEvent(ctx context.Context, eventType, file, via, key, channel string) error {
	data, err := readData(file)
	if err != nil {
		return err
	}

	env, err := eventbus.NewEnvelope(ctx, eventType, data)
	if err != nil {
		return err
	}
	// reject locally what the server would reject
	if err := eventbus.Dispatch(notify.Nop{}, env); err != nil {
		return err
	}

	if via == "http" {
		return publishHTTP(env)
	}

	transport, closeFn, err := busTransport(via, channel)
	if err != nil {
		return err
	}
	defer closeFn()

	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := transport.Publish(ctx, key, payload); err != nil {
		return fmt.Errorf("publish via %s: %w", via, err)
	}

	if output == "json" {
		return printJSON(map[string]interface{}{"id": env.ID, "type": env.Type, "via": via})
	}
	printSuccess("Published %s (%s) via %s", env.Type, env.ID, via)
	return nil
}

func publishHTTP(env *eventbus.Envelope) error {
	if internalToken == "" {
		return fmt.Errorf("INTERNAL_API_TOKEN is not set; pass --internal-token")
	}

	var result map[string]interface{}
	req := httpClient.R().
		SetHeader(middleware.InternalTokenHeader, internalToken).
		SetBody(env)
	if err := do(req, "POST", eventbus.IngestPath, &result); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(result)
	}
	printSuccess("Accepted %s (%s)", env.Type, result["id"])
	return nil
}

func busTransport(via, channel string) (eventbus.Transport, func(), error) {
	switch via {
	case "redis":
		client, err := cache.NewRedisClient(os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			return nil, nil, err
		}
		return eventbus.NewRedisTransport(client, channel), func() { _ = client.Close() }, nil
	case "kafka":
		brokers := os.Getenv("KAFKA_BROKERS")
		if brokers == "" {
			brokers = "localhost:9092"
		}
		topic := channel
		if topic == eventbus.DefaultChannel {
			topic = eventbus.DefaultKafkaTopic
		}
		transport := eventbus.NewKafkaTransport(strings.Split(brokers, ","), topic)
		return transport, func() { _ = transport.Close() }, nil
	case "postgres":
		db, err := database.Open(os.Getenv("DATABASE_URL"), false)
		if err != nil {
			return nil, nil, err
		}
		return eventbus.NewPGTransport(db, channel), func() { _ = database.Close(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown --via %q", via)
	}
}
