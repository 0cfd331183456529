package main

import (
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

// 本地联调用的上游：token 含 "expired" 时返回 401，shareFailRate 控制分享失败概率。
func main() {
	addr := flag.String("addr", ":8080", "listen address")
	shareFailRate := flag.Float64("share-fail-rate", 0.2, "probability that /bandwidth/share returns 502")
	flag.Parse()

	var (
		mu        sync.Mutex
		balances  = map[string]float64{}
		completed = map[string]map[string]bool{}
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "username and password are required"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"accessToken": "mock_" + randString(24)},
		})
	})

	mux.HandleFunc("/missions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token, ok := bearer(w, r)
		if !ok {
			return
		}
		mu.Lock()
		done := completed[token]
		missions := []map[string]any{}
		for _, id := range []string{"daily-checkin", "follow-x", "join-discord"} {
			status := "available"
			if done[id] {
				status = "completed"
			}
			missions = append(missions, map[string]any{"missionId": id, "status": status})
		}
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"missions": missions}})
	})

	mux.HandleFunc("/missions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/complete") {
			http.NotFound(w, r)
			return
		}
		token, ok := bearer(w, r)
		if !ok {
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/missions/"), "/complete")
		mu.Lock()
		if completed[token] == nil {
			completed[token] = map[string]bool{}
		}
		completed[token][id] = true
		balances[token] += 50
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"message": "mission " + id + " completed"})
	})

	mux.HandleFunc("/bandwidth/share", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token, ok := bearer(w, r)
		if !ok {
			return
		}
		var body struct {
			Quality int `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quality < 60 || body.Quality > 99 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "quality must be within 60..99"})
			return
		}
		if rand.Float64() < *shareFailRate {
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream busy"})
			return
		}
		mu.Lock()
		balances[token] += float64(body.Quality) / 10
		balance := balances[token]
		mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "bandwidth shared",
			"data":    map[string]any{"balances": map[string]any{"POINT": balance}},
		})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock listening on %s", *addr)
	log.Fatal(srv.ListenAndServe())
}

func bearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" || strings.Contains(token, "expired") {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
		return "", false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
