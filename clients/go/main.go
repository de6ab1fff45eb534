// Collab CLI - command line client for the meeting collaboration server.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/asmortongpt/meeting-minutes-app-sub001/clients/go/collab"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("COLLAB_URL")
	client := collab.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "watch":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: collab watch <room_id> <user_id>")
			os.Exit(1)
		}
		watch(client, os.Args[2], os.Args[3])

	case "edit":
		if len(os.Args) < 5 {
			fmt.Fprintln(os.Stderr, "Usage: collab edit <room_id> <user_id> <text>")
			os.Exit(1)
		}
		welcome, err := client.Join(collab.JoinOptions{
			RoomID: os.Args[2],
			UserID: os.Args[3],
			Token:  os.Getenv("COLLAB_TOKEN"),
		})
		exitOnError(err)
		exitOnError(client.Edit("note-1", "insert", 0, os.Args[4], 0))
		fmt.Printf("joined at seq %d, edit sent\n", welcome.Seq)
		_ = client.Leave()

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch joins a room and prints every frame until interrupted.
func watch(client *collab.Client, roomID, userID string) {
	welcome, err := client.Join(collab.JoinOptions{
		RoomID:   roomID,
		UserID:   userID,
		Token:    os.Getenv("COLLAB_TOKEN"),
		Passcode: os.Getenv("COLLAB_PASSCODE"),
	})
	exitOnError(err)
	fmt.Printf("joined room %s as session %s (seq %d, replayed %d)\n",
		roomID, welcome.SessionID, welcome.Seq, welcome.Replayed)

	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}()

	for {
		msg, err := client.Read()
		if err != nil {
			fmt.Fprintln(os.Stderr, "connection closed:", err)
			return
		}
		fmt.Printf("[seq %d] %s: %s\n", msg.Seq, msg.Kind, string(msg.Payload))
	}
}

func usage() {
	fmt.Println(`Collab CLI - meeting collaboration client

Usage: collab <command> [options]

Commands:
  watch <room> <user>         Join a room and print events
  edit <room> <user> <text>   Join, send one edit, leave
  stats                       Show server stats
  health                      Check server health

Environment:
  COLLAB_URL       Server URL (default: http://localhost:8080)
  COLLAB_TOKEN     Auth token for the join handshake
  COLLAB_PASSCODE  Passcode for private meetings`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
