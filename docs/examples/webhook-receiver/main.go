// Apply Portal Webhook Receiver Example
//
// This is a minimal example of how to receive and verify apply-portal
// organization webhooks.
//
// Usage:
//   export APPLY_PORTAL_WEBHOOK_SECRET="whsec_your_secret_here"
//   go run main.go
//
// Then register a webhook endpoint pointing to http://your-server:9000/webhook

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Event is the webhook payload envelope.
type Event struct {
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func main() {
	secret := os.Getenv("APPLY_PORTAL_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("APPLY_PORTAL_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/webhook")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-Ezcommon-Signature")
		timestamp := r.Header.Get("X-Ezcommon-Timestamp")
		deliveryID := r.Header.Get("X-Ezcommon-Delivery-Id")
		if signature == "" || timestamp == "" {
			log.Println("Missing signature headers")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		if !verifySignature(signature, timestamp, body, secret) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var event Event
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		log.Printf("✓ Received %s event %s (delivery %s)", event.EventType, event.EventID, deliveryID)
		log.Printf("  Data: %s", string(event.Data))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature verifies the HMAC-SHA256 signature from apply-portal.
//
// Signed payload: "{timestamp}.{body}" keyed with the endpoint secret.
// The timestamp header guards against replay (±5 min tolerance).
func verifySignature(signature, timestamp string, body []byte, secret string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if math.Abs(float64(time.Now().Unix()-ts)) > 300 {
		log.Println("Signature timestamp too old or in future")
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
