// scriven - interactive terminal chat with the workspace assistant
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"

	"github.com/scrivenlab/scriven/app"
	"github.com/scrivenlab/scriven/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to config YAML (default: $SCRIVEN_DATA_DIR/config.yaml)")
	userID := flag.String("user", "local", "user id for profile and history")
	session := flag.String("session", "", "resume an existing session id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[ERROR] load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("[ERROR] startup: %v", err)
	}
	defer a.Close()

	sessionID := *session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	fmt.Printf("Scriven ready. Session %s. Type /help for commands.\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, a, line, sessionID, *userID); quit {
				return
			}
			continue
		}

		result, err := a.Controller.RunTurn(ctx, line, sessionID, *userID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result.Text)
		if result.Err != nil {
			fmt.Printf("(turn ended %s: %s)\n", result.Phase, result.Err.Message)
		}
	}
}

// runCommand handles slash commands; returns true when the session should end
func runCommand(ctx context.Context, a *app.App, line, sessionID, userID string) bool {
	parts, err := shlex.Split(line)
	if err != nil {
		fmt.Printf("bad command: %v\n", err)
		return false
	}

	switch parts[0] {
	case "/quit", "/exit":
		fmt.Println("bye")
		return true

	case "/help":
		fmt.Println(`/stats           storage counters
/profile         known facts about you
/recall <query>  search past conversations
/reset           clear this session's history
/quit            leave`)

	case "/stats":
		stats, err := a.Store.Stats()
		if err != nil {
			fmt.Printf("stats failed: %v\n", err)
			return false
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-16s %d\n", k, stats[k])
		}
		if a.Index != nil {
			if n, err := a.Index.Count(); err == nil {
				fmt.Printf("%-16s %d\n", "vectors", n)
			}
		}

	case "/profile":
		fields, err := a.Profiles.Read(userID)
		if err != nil {
			fmt.Printf("profile read failed: %v\n", err)
			return false
		}
		if len(fields) == 0 {
			fmt.Println("nothing saved yet")
			return false
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, fields[k])
		}

	case "/recall":
		if a.Index == nil {
			fmt.Println("semantic recall is disabled (no embedding key)")
			return false
		}
		if len(parts) < 2 {
			fmt.Println("usage: /recall <query>")
			return false
		}
		query := strings.Join(parts[1:], " ")
		results, err := a.Index.Search(ctx, query, 5, 0)
		if err != nil {
			fmt.Printf("recall failed: %v\n", err)
			return false
		}
		if len(results) == 0 {
			fmt.Println("no matches")
			return false
		}
		for _, r := range results {
			fmt.Printf("[%.2f] %s\n", r.Score, r.Entry.Text)
		}

	case "/reset":
		if err := a.Store.ClearMessages(sessionID); err != nil {
			fmt.Printf("reset failed: %v\n", err)
			return false
		}
		fmt.Println("session history cleared")

	default:
		fmt.Printf("unknown command %s (try /help)\n", parts[0])
	}
	return false
}
