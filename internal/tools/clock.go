package tools

import (
	"context"
	"time"
)

// NewClockTool returns the built-in current_time tool. Models routinely
// need the wall clock and cannot be trusted to know it.
func NewClockTool() *Tool {
	return &Tool{
		Name:        "current_time",
		Description: "Get the current date and time. Use when the user asks about today's date, the time, or anything relative to now.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type":        "string",
					"description": "IANA timezone name (e.g., Europe/Berlin). Defaults to the server's local time.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			now := time.Now()
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return "", err
				}
				now = now.In(loc)
			}
			return now.Format("Monday, 2006-01-02 15:04:05 MST"), nil
		},
	}
}
