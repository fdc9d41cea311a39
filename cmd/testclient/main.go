// Command testclient checks the gRPC health service and then plays a short
// scripted conversation into a push source over the session websocket.
// Run the service with SESSION_SOURCES=push and SESSION_PUSH_SOURCE_KIND=diarizing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"ai-conversation-assist-service/internal/models"
)

var script = []models.PushMessage{
	{Speaker: "rep", Text: "Thanks for joining, how is your week going?", IsFinal: true},
	{Speaker: "customer", Text: "Busy, we are evaluating a few vendors.", IsFinal: true},
	{Speaker: "rep", Text: "Happy to walk you through the platform.", IsFinal: true},
	{Speaker: "customer", Text: "Honestly the price seems high compared to others.", IsFinal: true},
}

func main() {
	grpcAddr := flag.String("grpc", "localhost:50051", "gRPC server address")
	httpAddr := flag.String("server", "localhost:8080", "HTTP server address")
	source := flag.String("source", "push", "Push source id")
	flag.Parse()

	checkHealth(*grpcAddr)

	u := url.URL{Scheme: "ws", Host: *httpAddr, Path: "/v1/sessions/stream"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	go func() {
		for {
			var f models.ServerFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch {
			case f.Suggestion != nil:
				log.Printf("suggestion: %s (fallback=%v)", f.Suggestion.Text, f.Suggestion.Fallback)
			case f.Line != nil:
				log.Printf("line %s [%s] final=%v: %s", f.Line.ID, f.Line.Speaker, f.Line.IsFinal, f.Line.Text)
			case f.Type == models.FrameError:
				log.Printf("error %s: %s", f.Kind, f.Message)
			default:
				log.Printf("%s %s", f.Type, f.SessionID)
			}
		}
	}()

	for _, msg := range script {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Fatalf("failed to encode message: %v", err)
		}
		frame := models.ClientFrame{Type: models.FrameMessage, Source: *source, Payload: payload}
		if err := conn.WriteJSON(frame); err != nil {
			log.Fatalf("failed to send message: %v", err)
		}
		time.Sleep(1500 * time.Millisecond)
	}

	time.Sleep(3 * time.Second)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func checkHealth(addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}
	log.Printf("health: %s", resp.GetStatus())
}
