package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var onlineCmd = &cobra.Command{
	Use:   "online [userId...]",
	Short: "List online users, or check specific ones",
	Long: `Without arguments lists every user with a live connection.
With arguments reports the status of each named user.

Examples:
  threads-rt online
  threads-rt online u1 u2 u3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return listOnline()
		}
		return checkOnline(args)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show websocket hub statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showMetrics()
	},
}

type onlineUsersResponse struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}

type onlineStatusResponse struct {
	Statuses map[string]bool `json:"statuses"`
}

func listOnline() error {
	var result onlineUsersResponse
	if err := do(httpClient.R(), "GET", "/api/v1/ws/online", &result); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(result)
	}
	printTitle(fmt.Sprintf("🟢 Online users (%d)", result.Count))
	sort.Strings(result.UserIDs)
	for _, id := range result.UserIDs {
		fmt.Println(id)
	}
	return nil
}

func checkOnline(userIDs []string) error {
	var result onlineStatusResponse
	req := httpClient.R().SetBody(map[string]interface{}{"user_ids": userIDs})
	if err := do(req, "POST", "/api/v1/ws/online", &result); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(result)
	}
	for _, id := range userIDs {
		if result.Statuses[id] {
			printSuccess("%s online", id)
		} else {
			printInfo("  %s offline", id)
		}
	}
	return nil
}

func showMetrics() error {
	var result map[string]interface{}
	if err := do(httpClient.R(), "GET", "/api/v1/ws/metrics", &result); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(result)
	}
	printTitle("📊 WebSocket metrics")
	if stats, ok := result["websocket"].(map[string]interface{}); ok {
		printKeyValue(stats)
	}
	if users, ok := result["online_users"].([]interface{}); ok {
		fmt.Printf("\nOnline users: %d\n", len(users))
	}
	return nil
}
