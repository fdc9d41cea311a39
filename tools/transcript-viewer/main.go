// Transcript Viewer - live conversation display.
// Consumes transcript and suggestion topics from Kafka and fans them out to
// browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

// Event is the subset of the service's Kafka payloads the viewer renders.
// Transcript events carry Line, suggestion events carry Suggestion.
type Event struct {
	EventType  string      `json:"eventType"`
	SessionID  string      `json:"sessionId"`
	Timestamp  int64       `json:"timestamp"`
	Line       *Line       `json:"line,omitempty"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

type Line struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
}

type Suggestion struct {
	Text     string `json:"text"`
	LineID   string `json:"lineId"`
	Fallback bool   `json:"fallback,omitempty"`
}

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// run owns the client set; only this goroutine touches it.
func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				conn.Close()
			}
			return

		case conn := <-h.register:
			h.clients[conn] = true
			log.Printf("Client connected. Total: %d", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			log.Printf("Client disconnected. Total: %d", len(h.clients))

		case event := <-h.broadcast:
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Partition reader without a consumer group works through port-forwards.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Printf("Seek error on %s: %v", topic, err)
	}

	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}

		switch {
		case event.Line != nil:
			log.Printf("Received %s [%s]: %s", event.EventType, event.Line.Speaker, truncate(event.Line.Text, 40))
		case event.Suggestion != nil:
			log.Printf("Received %s: %s", event.EventType, truncate(event.Suggestion.Text, 40))
		}
		hub.broadcast <- event
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "transcript.partial", "Interim transcript topic")
	topicFinal := flag.String("topic-final", "transcript.final", "Final transcript topic")
	topicSuggestion := flag.String("topic-suggestion", "assist.suggestion", "Suggestion topic")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	var wg sync.WaitGroup
	for _, topic := range []string{*topicPartial, *topicFinal, *topicSuggestion} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consumeKafka(ctx, hub, *brokers, topic)
		}(topic)
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	http.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Transcript Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s, %s", *topicPartial, *topicFinal, *topicSuggestion)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Printf("Server error: %v", err)
	}
	cancel()
	wg.Wait()
}

const indexHTML = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>Conversation</title>
<style>
body{font-family:sans-serif;margin:2em;max-width:48em}
.self{color:#555}.counterparty{color:#000;font-weight:bold}
.interim{opacity:.5}.suggestion{background:#eef6ff;padding:.4em;margin:.3em 0}
</style></head>
<body>
<h1>Live conversation</h1>
<div id="log"></div>
<script>
const log = document.getElementById("log");
const lines = {};
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (m) => {
  const ev = JSON.parse(m.data);
  if (ev.line) {
    let el = lines[ev.line.id];
    if (!el) { el = document.createElement("div"); lines[ev.line.id] = el; log.appendChild(el); }
    el.className = ev.line.speaker + (ev.line.isFinal ? "" : " interim");
    el.textContent = ev.line.speaker + ": " + ev.line.text;
  } else if (ev.suggestion) {
    const el = document.createElement("div");
    el.className = "suggestion";
    el.textContent = ev.suggestion.text;
    log.appendChild(el);
  }
};
</script>
</body>
</html>
`
