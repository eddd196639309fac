package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect as a user and print every realtime event",
	Long: `Open a websocket as --user with --token, join the given post rooms and
print events until interrupted.

Examples:
  threads-rt watch --user u1 --token $(threads-rt token u1)
  threads-rt watch --post p1 --post p2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		postIDs, _ := cmd.Flags().GetStringSlice("post")
		return watch(cmd.Context(), postIDs)
	},
}

func init() {
	watchCmd.Flags().StringSlice("post", nil, "Post ids whose rooms to join")
}

// wireMessage is the envelope every websocket frame uses
type wireMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ID        string          `json:"id,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// websocketURL maps the API url onto the upgrade endpoint
func websocketURL(base, token, uid string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	q.Set("userId", uid)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func watch(ctx context.Context, postIDs []string) error {
	if authToken == "" || userID == "" {
		return fmt.Errorf("watch needs --token and --user")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wsURL, err := websocketURL(apiURL, authToken, userID)
	if err != nil {
		return fmt.Errorf("invalid --api: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, resp, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		if resp != nil {
			return fmt.Errorf("connect: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	printInfo("Connected as %s", userID)

	for _, postID := range postIDs {
		join := map[string]interface{}{
			"type":      "joinPostRoom",
			"payload":   map[string]string{"room": "post:" + postID},
			"timestamp": time.Now().UnixMilli(),
		}
		if err := wsjson.Write(ctx, conn, join); err != nil {
			return fmt.Errorf("join post %s: %w", postID, err)
		}
		printInfo("Joined post:%s", postID)
	}

	for {
		var msg wireMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if status := websocket.CloseStatus(err); status != -1 {
				printInfo("Server closed the connection (%d)", status)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		printEvent(msg)
	}
}

func printEvent(msg wireMessage) {
	if output == "json" {
		_ = printJSON(msg)
		return
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := color.New(color.Faint).Sprint(ts.Local().Format("15:04:05.000"))
	fmt.Fprintf(color.Output, "%s %s %s\n", stamp, eventColor(msg.Type).Sprintf("%-18s", msg.Type), string(msg.Payload))
}
