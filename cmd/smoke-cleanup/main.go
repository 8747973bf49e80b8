// smoke-cleanup drives one full cleanup flow against a running API:
// register two users, report a zone, create an event, join, post a chat
// message and verify it lands in history at position 0.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("ECOSWEEP_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}
	run := fmt.Sprintf("%d", time.Now().UnixNano())

	organizer := register(client, base, "Smoke Organizer", "smoke-org-"+run+"@example.org")
	participant := register(client, base, "Smoke Participant", "smoke-part-"+run+"@example.org")

	var z struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	call(client, http.MethodPost, base+"/v1/zones", organizer, map[string]any{
		"lat": 52.52, "lon": 13.40, "description": "smoke test litter " + run,
	}, &z)
	if z.Status != "REPORTED" {
		log.Fatalf("zone status: %s", z.Status)
	}

	var ev struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	call(client, http.MethodPost, base+"/v1/events", organizer, map[string]any{
		"title":    "Smoke cleanup " + run,
		"start_at": time.Now().UTC().Add(time.Hour),
		"zone_id":  z.ID,
	}, &ev)
	if ev.Status != "PLANNED" {
		log.Fatalf("event status: %s", ev.Status)
	}

	call(client, http.MethodPost, base+"/v1/events/"+ev.ID+"/join", participant, nil, nil)

	var msg struct {
		Position uint64 `json:"position"`
		Content  string `json:"content"`
	}
	call(client, http.MethodPost, base+"/v1/events/"+ev.ID+"/chat", participant, map[string]any{
		"content": "smoke says hi",
	}, &msg)
	if msg.Position != 0 {
		log.Fatalf("first message position: %d", msg.Position)
	}

	var hist struct {
		Items []struct {
			Content string `json:"content"`
		} `json:"items"`
	}
	call(client, http.MethodGet, base+"/v1/events/"+ev.ID+"/chat", participant, nil, &hist)
	if len(hist.Items) != 1 || hist.Items[0].Content != "smoke says hi" {
		log.Fatalf("unexpected chat history: %+v", hist.Items)
	}

	fmt.Printf("✅ cleanup smoke test passed: zone=%s event=%s\n", z.ID, ev.ID)
}

// register creates a user and returns its bearer token.
func register(client *http.Client, base, name, email string) string {
	var u struct {
		ID string `json:"id"`
	}
	call(client, http.MethodPost, base+"/v1/users", "", map[string]any{
		"name": name, "email": email,
	}, &u)

	var tok struct {
		Token string `json:"token"`
	}
	call(client, http.MethodPost, base+"/v1/auth/token", "", map[string]any{
		"user_id": u.ID,
	}, &tok)
	if tok.Token == "" {
		log.Fatal("empty token issued")
	}
	return tok.Token
}

func call(client *http.Client, method, url, token string, body, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("request %s: %v", url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: unexpected status %d", method, url, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", url, err)
		}
	}
}
