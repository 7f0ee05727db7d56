package main

import (
	"encoding/json"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
)

// Stream audio in chunks to simulate real-time streaming
// At 16kHz 16-bit mono = 32000 bytes/second
const bytesPerMs = 32

func main() {
	audioFile := flag.StringP("audio", "a", "", "Path to WAV file (16kHz 16-bit mono); empty streams a synthetic signal")
	serverURL := flag.StringP("server", "s", "ws://localhost:8000/ws", "WebSocket endpoint")
	userID := flag.StringP("user", "u", "demo-user", "User ID sent as user_id")
	chunkMs := flag.Int("chunk-ms", 100, "Chunk duration in milliseconds")
	cycles := flag.Int("cycles", 3, "Silence/tone cycles for the synthetic signal")
	linger := flag.Duration("linger", 3*time.Second, "Time to wait for results after the last chunk")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var audio []byte
	if *audioFile != "" {
		f, err := os.Open(*audioFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open audio file")
		}
		audio, err = readWAV(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", *audioFile).Msg("Failed to read WAV")
		}
	} else {
		audio = synthesize(*cycles)
		log.Info().Int("cycles", *cycles).Msg("Streaming synthetic silence/tone signal")
	}

	u, err := url.Parse(*serverURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server URL")
	}
	q := u.Query()
	q.Set("user_id", *userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", u.String()).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", u.String()).Msg("Connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		readResults(conn)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	chunkSize := *chunkMs * bytesPerMs
	ticker := time.NewTicker(time.Duration(*chunkMs) * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	var sent, chunks int
	for sent < len(audio) {
		select {
		case <-interrupt:
			log.Info().Msg("Interrupted")
			closeConn(conn, done)
			return
		case <-done:
			log.Warn().Msg("Server closed the connection")
			return
		case <-ticker.C:
		}

		end := min(sent+chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[sent:end]); err != nil {
			log.Fatal().Err(err).Msg("Failed to send chunk")
		}
		sent = end
		chunks++
		if chunks%10 == 0 {
			log.Debug().Int("chunk", chunks).Int("bytes", sent).Msg("Sent audio")
		}
	}
	log.Info().Int("chunks", chunks).Int("bytes", sent).Dur("elapsed", time.Since(start)).Msg("Finished streaming")

	select {
	case <-time.After(*linger):
	case <-interrupt:
	case <-done:
		return
	}
	closeConn(conn, done)
}

func readResults(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Read loop ended")
			}
			return
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("Non-JSON message")
			continue
		}
		switch {
		case msg["detected"] == true:
			log.Warn().Interface("patterns", msg["patterns"]).Interface("text", msg["text"]).Msg("Profanity detected")
		case msg["type"] != nil:
			log.Info().RawJSON("message", data).Msg("Control message")
		default:
			log.Info().RawJSON("result", data).Msg("Window analyzed")
		}
	}
}

func closeConn(conn *websocket.Conn, done <-chan struct{}) {
	err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to send close frame")
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
