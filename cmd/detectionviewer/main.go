// Detection Viewer - real-time profanity detection feed.
// Consumes the detection topic from Kafka and rebroadcasts to browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	flag "github.com/spf13/pflag"

	"profanity-stream-service/internal/events"
	"profanity-stream-service/internal/models"
)

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string, since time.Duration) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Msg("Failed to seek, reading from the committed offset")
	}

	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming detections")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(msg.Value)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping message")
			continue
		}

		log.Info().
			Str("user", event.UserID).
			Strs("patterns", event.Patterns).
			Msg("Received detection")

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

func decodeEvent(value []byte) (models.DetectionEvent, error) {
	var event models.DetectionEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, err
	}
	if event.EventType != models.DetectionEventType {
		return event, errors.New("unexpected event type " + event.EventType)
	}
	return event, nil
}

func main() {
	port := flag.StringP("port", "p", "8081", "HTTP server port")
	brokers := flag.StringP("brokers", "b", "localhost:9092", "Kafka brokers (comma-separated)")
	topic := flag.StringP("topic", "t", events.DefaultTopic, "Detection topic")
	since := flag.Duration("since", time.Hour, "Replay detections newer than this")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(ctx.Done())
	go hub.run()
	go consumeKafka(ctx, hub, *brokers, *topic, *since)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	mux.HandleFunc("/ws", wsHandler(hub))

	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Str("topic", *topic).
		Msg("Detection Viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}

const indexHTML = `<!doctype html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>Detection Viewer</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
li { margin: .3rem 0; }
.pattern { color: #c0392b; font-weight: bold; }
.meta { color: #888; font-size: .85em; }
</style>
</head>
<body>
<h1>Detections</h1>
<ul id="feed"></ul>
<script>
const feed = document.getElementById("feed");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (e) => {
  const d = JSON.parse(e.data);
  const li = document.createElement("li");
  li.innerHTML = '<span class="pattern"></span> <span class="text"></span> <span class="meta"></span>';
  li.querySelector(".pattern").textContent = (d.patterns || []).join(", ");
  li.querySelector(".text").textContent = d.text;
  li.querySelector(".meta").textContent = d.userId + " " + new Date(d.timestamp).toLocaleTimeString();
  feed.prepend(li);
};
</script>
</body>
</html>
`
