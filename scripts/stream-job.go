//go:build ignore

// stream-job.go - submits a job over the websocket stream and prints its
// lifecycle frames
//
// Usage:
//
//	go run scripts/stream-job.go -kind deploy -payload deploy.json [-token $JWT]
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "Dispatcher websocket base URL")
	kind := flag.String("kind", "call", "Job kind (deploy, mint, whitelist_add, whitelist_remove, call)")
	payloadPath := flag.String("payload", "", "Path to the JSON payload")
	token := flag.String("token", "", "Bearer token, required when the dispatcher sets auth.jwks_url")
	flag.Parse()

	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read payload: %v\n", err)
		os.Exit(1)
	}

	header := http.Header{}
	if *token != "" {
		header.Set("Authorization", "Bearer "+*token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*addr+"/v1/jobs/"+*kind+"/stream", header)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		fmt.Fprintf(os.Stderr, "send payload: %v\n", err)
		os.Exit(1)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				fmt.Fprintf(os.Stderr, "stream: %v\n", err)
				os.Exit(1)
			}
			return
		}
		fmt.Println(string(msg))
	}
}
