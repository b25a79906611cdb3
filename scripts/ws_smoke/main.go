package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/datingchat-server/internal/proto"
)

// inbound mirrors proto.Outbound with the payload kept raw for printing.
type inbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws/messages", "chat websocket address")
	token := flag.String("token", "", "access token (see `datingchat token`)")
	peer := flag.String("peer", "", "username to open the conversation with")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *peer == "" {
		return fmt.Errorf("-token and -peer are required")
	}

	u, err := url.Parse(*addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("user", *peer)
	q.Set("access_token", *token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	payload, err := json.Marshal(proto.SendData{Content: *text})
	if err != nil {
		return fmt.Errorf("marshal send: %w", err)
	}

	sent := false
	for {
		var frame inbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			return fmt.Errorf("server error %s: %s", frame.Error.Code, frame.Error.Msg)
		}
		fmt.Printf("event=%s data=%s\n", frame.Event, string(frame.Data))

		switch frame.Event {
		case "message_thread":
			if sent {
				continue
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSend, Data: payload}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
			sent = true
		case "new_message":
			return nil
		}
	}
}
