// Command audioclient streams a WAV file to a session websocket in real time
// and prints the transcript lines and suggestions it receives.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"ai-conversation-assist-service/internal/models"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit mono PCM)")
	server := flag.String("server", "localhost:8080", "HTTP server address")
	model := flag.String("model", "", "Model selector for this session")
	notes := flag.String("context", "", "Operator context sent with every request")
	linger := flag.Duration("linger", 5*time.Second, "Time to wait for results after the last chunk")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 {
		log.Fatal("Only PCM format supported")
	}

	// 100ms of 16-bit mono audio.
	chunkSize := int(sampleRate) * 2 / 10

	u := url.URL{Scheme: "ws", Host: *server, Path: "/v1/sessions/stream"}
	q := u.Query()
	if *model != "" {
		q.Set("model", *model)
	}
	if *notes != "" {
		q.Set("context", *notes)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", u.String())

	go printFrames(conn)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)
		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send chunk: %v", err)
		}
		if chunkNum%50 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		time.Sleep(chunkInterval)
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))
	time.Sleep(*linger)

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func printFrames(conn *websocket.Conn) {
	for {
		var f models.ServerFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		fmt.Println(describe(f))
	}
}

func describe(f models.ServerFrame) string {
	switch {
	case f.Type == models.FrameSession:
		return "session " + f.SessionID
	case f.Line != nil && f.Line.IsFinal:
		return fmt.Sprintf("[%s] %s", f.Line.Speaker, f.Line.Text)
	case f.Line != nil:
		return fmt.Sprintf("[%s] %s ...", f.Line.Speaker, f.Line.Text)
	case f.Suggestion != nil:
		return "  >> " + f.Suggestion.Text
	case f.Type == models.FrameError:
		return fmt.Sprintf("error (%s): %s", f.Kind, f.Message)
	default:
		return f.Type
	}
}
