// ABOUTME: CLI for the courier messaging API
// ABOUTME: Lists conversations, reads threads, sends messages, and tails events

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                      _                         _           _
  ___ ___  _   _ _ __(_) ___ _ __      __ _  __| |_ __ ___ (_)_ __
 / __/ _ \| | | | '__| |/ _ \ '__|____/ _' |/ _' | '_ ' _ \| | '_ \
| (_| (_) | |_| | |  | |  __/ | |_____| (_| | (_| | | | | | | | | | |
 \___\___/ \__,_|_|  |_|\___|_|        \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := getEnv("COURIER_URL", "http://localhost:8080")
	token := getToken()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := &apiClient{baseURL: baseURL, token: token}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "conversations", "convos":
		err = cmdConversations(ctx, c)
	case "thread":
		err = cmdThread(ctx, c, args)
	case "send":
		err = cmdSend(ctx, c, args)
	case "read":
		err = cmdRead(ctx, c, args)
	case "tail":
		err = cmdTail(ctx, c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: courier-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  conversations                 List your conversation summaries")
	fmt.Println("  thread <store> [customer]     Show a thread's messages")
	fmt.Println("  send <store> <message>        Send a message as a customer")
	fmt.Println("  send <store> -c CUST <msg>    Reply to a customer as the owner")
	fmt.Println("  read <message-id>             Mark a message as read")
	fmt.Println("  tail <store> [customer]       Follow a store's change events (SSE)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  COURIER_URL     Gateway base URL (default: http://localhost:8080)")
	fmt.Println("  COURIER_TOKEN   JWT viewer token (or ~/.config/courier/token)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export COURIER_TOKEN=\"eyJhbG...\"")
	fmt.Println("  courier-admin conversations")
	fmt.Println("  courier-admin send store-17 \"Do you carry espresso beans?\"")
	fmt.Println("  courier-admin send store-17 -c cust-42 \"Yes, back in stock!\"")
	fmt.Println()
}

// apiClient is a thin HTTP client for the gateway API.
type apiClient struct {
	baseURL string
	token   string
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return fmt.Errorf("COURIER_TOKEN environment variable is required")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			Retryable bool   `json:"retryable"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
			if errResp.Retryable {
				return fmt.Errorf("%s (status %d, retryable)", errResp.Error, resp.StatusCode)
			}
			return fmt.Errorf("%s (status %d)", errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type summary struct {
	StoreID            string `json:"store_id"`
	CounterpartID      string `json:"counterpart_id"`
	CounterpartName    string `json:"counterpart_name"`
	LastMessage        string `json:"last_message"`
	LastMessageTime    string `json:"last_message_time"`
	UnreadCount        int    `json:"unread_count"`
	IsOwnerView        bool   `json:"is_owner_view"`
	LastSenderIsViewer bool   `json:"last_sender_is_viewer"`
}

type message struct {
	ID        string `json:"id"`
	StoreID   string `json:"store_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Body      string `json:"body"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

func cmdConversations(ctx context.Context, c *apiClient) error {
	var resp struct {
		Conversations []summary `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Conversations")
	cyan.Println("  -------------")

	if len(resp.Conversations) == 0 {
		fmt.Println("  (no conversations)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  STORE\tWITH\tUNREAD\tLAST MESSAGE\tWHEN")
	fmt.Fprintln(w, "  -----\t----\t------\t------------\t----")

	for _, s := range resp.Conversations {
		last := truncate(s.LastMessage, 40)
		if s.LastSenderIsViewer {
			last = "you: " + truncate(s.LastMessage, 35)
		}
		unread := ""
		if s.UnreadCount > 0 {
			unread = fmt.Sprintf("%d", s.UnreadCount)
		}
		when := s.LastMessageTime
		if t, err := time.Parse(time.RFC3339Nano, s.LastMessageTime); err == nil {
			when = t.Local().Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			truncate(s.StoreID, 16), truncate(s.CounterpartName, 20), unread, last, when)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdThread(ctx context.Context, c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: courier-admin thread <store> [customer]")
	}
	storeID := args[0]

	path := "/api/stores/" + storeID + "/thread"
	if len(args) > 1 {
		path += "?user_id=" + args[1]
	}

	var resp struct {
		StoreID  string    `json:"store_id"`
		UserID   string    `json:"user_id"`
		Messages []message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Printf("  Thread: %s / %s\n", resp.StoreID, resp.UserID)
	cyan.Println("  ------")

	if len(resp.Messages) == 0 {
		fmt.Println("  (no messages)")
		fmt.Println()
		return nil
	}

	for _, m := range resp.Messages {
		when := m.CreatedAt
		if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
			when = t.Local().Format("Jan 02 15:04")
		}
		gray.Printf("  [%s] ", when)
		if m.Role == "owner" {
			green.Printf("%-8s ", "owner")
		} else {
			fmt.Printf("%-8s ", m.Role)
		}
		fmt.Print(m.Body)
		if !m.IsRead {
			gray.Printf("  (unread, id %s)", m.ID)
		}
		fmt.Println()
	}
	fmt.Println()

	return nil
}

func cmdSend(ctx context.Context, c *apiClient, args []string) error {
	var storeID, customer string
	var bodyParts []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-c" || args[i] == "--customer":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", args[i])
			}
			customer = args[i+1]
			i++
		case storeID == "":
			storeID = args[i]
		default:
			bodyParts = append(bodyParts, args[i])
		}
	}

	if storeID == "" || len(bodyParts) == 0 {
		return fmt.Errorf("usage: courier-admin send <store> [-c customer] <message>")
	}

	role := "customer"
	if customer != "" {
		role = "owner"
	}

	req := map[string]string{
		"store_id": storeID,
		"role":     role,
		"body":     strings.Join(bodyParts, " "),
	}
	if customer != "" {
		req["user_id"] = customer
	}

	var msg message
	if err := c.do(ctx, http.MethodPost, "/api/messages", req, &msg); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Sent %s\n", msg.ID)
	return nil
}

func cmdRead(ctx context.Context, c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: courier-admin read <message-id>")
	}

	if err := c.do(ctx, http.MethodPost, "/api/messages/"+args[0]+"/read", nil, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Marked read %s\n", args[0])
	return nil
}

// cmdTail follows a store's SSE change feed and prints each event.
// Events carry identity only, so this shows what changed and when; use
// "thread" to fetch the content.
func cmdTail(ctx context.Context, c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: courier-admin tail <store> [customer]")
	}
	if c.token == "" {
		return fmt.Errorf("COURIER_TOKEN environment variable is required")
	}
	storeID := args[0]

	path := c.baseURL + "/api/stores/" + storeID + "/events"
	if len(args) > 1 {
		path += "?user_id=" + args[1]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	cyan.Printf("  Tailing %s (Ctrl-C to stop)\n", storeID)

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if event == "" {
				continue
			}
			ts := time.Now().Local().Format("15:04:05")
			gray.Printf("  %s ", ts)
			switch event {
			case "connected":
				cyan.Print(event)
			case "message_created":
				color.New(color.FgGreen).Print(event)
			case "message_read":
				color.New(color.FgYellow).Print(event)
			default:
				fmt.Print(event)
			}
			fmt.Printf(" %s\n", data)
			event = ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getToken returns the JWT token from COURIER_TOKEN env var or ~/.config/courier/token file
func getToken() string {
	// Check env var first
	if token := os.Getenv("COURIER_TOKEN"); token != "" {
		return token
	}

	// Try to read from token file
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	tokenPath := filepath.Join(configDir, "courier", "token")
	data, err := os.ReadFile(tokenPath)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
