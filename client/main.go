// Command client is a test listener: it connects to the alert node,
// registers a user and prints every event it receives.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"
)

var (
	addr = flag.String("addr", "localhost:8080", "http service address")
	user = flag.String("user", "", "user id to register")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	if *user == "" {
		log.Fatalln("no user")
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	reg, _ := json.Marshal(map[string]string{
		"type":   "register_user",
		"userId": *user,
	})
	if err := c.WriteMessage(websocket.TextMessage, reg); err != nil {
		log.Fatal("register:", err)
	}

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			return
		}

		ev := struct {
			Type    string          `json:"type"`
			Alert   json.RawMessage `json:"alert"`
			Count   int             `json:"count"`
			Message string          `json:"message"`
		}{}
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Println("read json:", err)
			continue
		}
		switch ev.Type {
		case "new_alert":
			fmt.Printf("new alert: %s\n", ev.Alert)
		case "queued_alerts_delivered":
			fmt.Printf("%s (%d queued)\n", ev.Message, ev.Count)
		default:
			fmt.Printf("event %q: %s\n", ev.Type, message)
		}
	}
}
