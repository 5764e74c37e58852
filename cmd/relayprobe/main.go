// Package main provides a stress testing tool for the realtime relay.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	MessagesSent         int64
	MessagesReceived     int64
	TypingReceived       int64
	Errors               int64
}

var metrics Metrics

type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "", "Log in as this user before connecting (needed when AUTH_REQUIRED is set)")
	password := flag.String("password", "password123", "Test user password")
	clients := flag.Int("clients", 50, "Number of concurrent clients")
	rooms := flag.Int("rooms", 5, "Spread clients over this many rooms")
	interval := flag.Duration("interval", 5*time.Second, "Send interval per client")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	log.Printf("🚀 Starting Relay Stress Test")
	log.Printf("Target: %s", *host)
	log.Printf("Clients: %d across %d rooms", *clients, *rooms)
	log.Printf("Duration: %v", *duration)

	var token string
	if *email != "" {
		var err error
		if token, err = login(*host, *email, *password); err != nil {
			log.Fatalf("❌ Login failed: %v", err)
		}
		log.Printf("✅ Logged in successfully")
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	// Start clients
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		room := fmt.Sprintf("chat_%d", i%*rooms+1)
		go runClient(*host, token, room, i, *interval, stopChan, &wg)
		time.Sleep(20 * time.Millisecond)
	}

	// Wait for duration or interrupt
	select {
	case <-time.After(*duration):
		log.Println("⏱️  Test duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func login(host, email, password string) (string, error) {
	loginURL := fmt.Sprintf("http://%s/api/auth/login", host)
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})

	resp, err := http.Post(loginURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func runClient(host, token, room string, id int, interval time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	if err := c.WriteJSON(frame{Event: "joinChat", Data: room}); err != nil {
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	// Read loop
	go func() {
		for {
			var in struct {
				Event string `json:"event"`
			}
			if err := c.ReadJSON(&in); err != nil {
				return
			}
			switch in.Event {
			case "receiveMessage":
				atomic.AddInt64(&metrics.MessagesReceived, 1)
			case "typing":
				atomic.AddInt64(&metrics.TypingReceived, 1)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			_ = c.WriteJSON(frame{Event: "typing", Data: map[string]interface{}{"chatId": room, "userId": id}})
			err := c.WriteJSON(frame{Event: "sendMessage", Data: map[string]interface{}{
				"roomKey":   room,
				"sender":    id,
				"message":   fmt.Sprintf("Stress test message from client %d", id),
				"timestamp": time.Now().UTC(),
			}})
			if err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				return
			}
			atomic.AddInt64(&metrics.MessagesSent, 1)
		}
	}
}

func printMetrics() {
	log.Println("\n📊 Test Results")
	log.Println("===============")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Messages Sent: %d", atomic.LoadInt64(&metrics.MessagesSent))
	log.Printf("Messages Received: %d", atomic.LoadInt64(&metrics.MessagesReceived))
	log.Printf("Typing Received: %d", atomic.LoadInt64(&metrics.TypingReceived))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
