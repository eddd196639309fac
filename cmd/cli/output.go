package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/fatih/color"
)

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(color.Output, "✓ "+format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(color.Output, format+"\n", args...)
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(color.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printTitle(title string) {
	bold := color.New(color.Bold)
	bold.Fprintf(color.Output, "\n%s\n", title)
	fmt.Fprintln(color.Output, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// printKeyValue prints a flat map sorted by key
func printKeyValue(data map[string]interface{}) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(color.Output, 0, 0, 2, ' ', 0)
	key := color.New(color.FgYellow)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", key.Sprint(k), data[k])
	}
	_ = w.Flush()
}

// eventColor groups event types by the audience they reach
func eventColor(eventType string) *color.Color {
	switch eventType {
	case "error":
		return color.New(color.FgRed, color.Bold)
	case "system", "pong":
		return color.New(color.Faint)
	case "newMessage", "messagesSeen", "typing", "stopTyping":
		return color.New(color.FgMagenta)
	case "newPost", "postDeleted", "postBanned", "postUnbanned", "getOnlineUsers":
		return color.New(color.FgBlue)
	default:
		return color.New(color.FgGreen)
	}
}
