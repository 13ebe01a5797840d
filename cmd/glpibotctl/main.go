package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glpibot/glpibot/internal/config"
	"github.com/glpibot/glpibot/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "sessions":
		cmdSessions()
	case "snapshots":
		if len(os.Args) >= 3 {
			cmdSnapshotShow(os.Args[2])
		} else {
			cmdSnapshots()
		}
	case "stats":
		cmdStats()
	case "logs":
		cmdLogs(os.Args[2:])
	case "notifications":
		cmdNotifications(os.Args[2:])
	case "poll":
		cmdPoll()
	case "config":
		if len(os.Args) < 3 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: glpibotctl config validate [path]")
			os.Exit(1)
		}
		path := ""
		if len(os.Args) >= 4 {
			path = os.Args[3]
		}
		cmdConfigValidate(path)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiDo("GET", "/api/health")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(body))
}

func cmdSessions() {
	var sessions []protocol.SessionInfo
	if err := apiJSON("GET", "/api/sessions", &sessions); err != nil {
		fail(err)
	}
	for _, s := range sessions {
		fmt.Printf("%-14d %-11s %-16s %s\n", s.ChatID, s.Role, s.Profile, s.CreatedAt.Format(time.RFC3339))
	}
}

func cmdSnapshots() {
	var snaps []protocol.SnapshotInfo
	if err := apiJSON("GET", "/api/snapshots", &snaps); err != nil {
		fail(err)
	}
	for _, s := range snaps {
		fmt.Printf("#%-6d %-20s %3d comments  %s\n", s.TicketID, s.Status, s.Comments, s.Title)
	}
}

func cmdSnapshotShow(id string) {
	body, err := apiDo("GET", "/api/snapshots/"+url.PathEscape(id))
	if err != nil {
		fail(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdStats() {
	var st protocol.Stats
	if err := apiJSON("GET", "/api/stats", &st); err != nil {
		fail(err)
	}
	fmt.Printf("sessions:       %d\n", st.Sessions)
	fmt.Printf("conversations:  %d\n", st.Conversations)
	fmt.Printf("snapshots:      %d\n", st.Snapshots)
	fmt.Printf("cycles:         %d\n", st.Cycles)
	fmt.Printf("delivered:      %d\n", st.Delivered)
	fmt.Printf("undelivered:    %d\n", st.Undelivered)
	if st.NextPoll != nil {
		fmt.Printf("next poll:      %s\n", st.NextPoll.Format(time.RFC3339))
	}
	if st.LastCycle != nil {
		fmt.Println("last " + st.LastCycle.Summary())
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (debug|info|warn|error)")
	ticket := fs.Int("ticket", 0, "Only entries about this ticket")
	since := fs.Duration("since", 0, "Only entries newer than this (e.g. 10m)")
	limit := fs.Int("limit", 100, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))
	if *level != "" {
		q.Set("level", *level)
	}
	if *ticket != 0 {
		q.Set("ticket", strconv.Itoa(*ticket))
	}
	if *since > 0 {
		q.Set("since", strconv.FormatInt(time.Now().Add(-*since).UnixMilli(), 10))
	}

	var entries []protocol.LogEntry
	if err := apiJSON("GET", "/api/logs?"+q.Encode(), &entries); err != nil {
		fail(err)
	}
	for _, e := range entries {
		fmt.Printf("%s %-5s %s%s\n", e.Time.Format("15:04:05.000"), e.Level, e.Message, formatAttrs(e.Attrs))
	}
}

func cmdNotifications(args []string) {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	ticket := fs.Int("ticket", 0, "Filter by ticket id")
	status := fs.String("status", "", "Filter by status (sent|failed)")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(*limit))
	if *ticket != 0 {
		q.Set("ticket", strconv.Itoa(*ticket))
	}
	if *status != "" {
		q.Set("status", *status)
	}

	var records []protocol.NotificationRecord
	if err := apiJSON("GET", "/api/notifications?"+q.Encode(), &records); err != nil {
		fail(err)
	}
	for _, r := range records {
		line := fmt.Sprintf("%s #%-6d chat=%-14d %-8s %-6s", r.SentAt.Format(time.RFC3339), r.TicketID, r.ChatID, r.Kind, r.Status)
		if r.Error != "" {
			line += " " + r.Error
		}
		fmt.Println(line)
	}
}

func cmdPoll() {
	var cycle protocol.CycleStats
	if err := apiJSON("POST", "/api/poll", &cycle); err != nil {
		fail(err)
	}
	fmt.Println(cycle.Summary())
}

func cmdConfigValidate(path string) {
	var err error
	if path != "" {
		_, err = config.Load(path)
	} else {
		var cfg *config.Config
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiDo(method, path string) ([]byte, error) {
	base := strings.TrimRight(envOr("GLPIBOT_API_URL", "http://localhost:8080"), "/")

	req, err := http.NewRequest(method, base+path, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("GLPIBOT_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func apiJSON(method, path string, out any) error {
	body, err := apiDo(method, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatAttrs(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, attrs[k])
	}
	return b.String()
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("glpibotctl - glpibot admin CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                 Check daemon health")
	fmt.Println("  sessions               List logged-in chat users")
	fmt.Println("  snapshots [id]         List ticket snapshots or show one")
	fmt.Println("  stats                  Show poll and delivery statistics")
	fmt.Println("  logs                   Show recent logs (--level, --ticket, --since, --limit)")
	fmt.Println("  notifications          Show delivery journal (--ticket, --status, --limit)")
	fmt.Println("  poll                   Run a poll cycle now")
	fmt.Println("  config validate [p]    Validate config file (default: environment)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GLPIBOT_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  GLPIBOT_API_KEY   API key for authentication")
}
