package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Healthy CRM endpoint — always returns 200
	http.HandleFunc("/export/ok", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	})

	// Slow endpoint — delays 12 seconds, past the default attempt timeout
	http.HandleFunc("/export/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(12 * time.Second)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received (slow)"})
	})

	// Flaky endpoint — fails every other request with a 500
	http.HandleFunc("/export/flaky", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		w.Header().Set("Content-Type", "application/json")
		if count%2 == 1 {
			logRequest(r, count, 500)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
			return
		}
		logRequest(r, count, 200)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received (eventually)"})
	})

	// Rejecting endpoint — always returns 422, abandoned on first attempt
	http.HandleFunc("/export/reject", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 422)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"error": "lead payload rejected"})
	})

	// Stats endpoint — shows request count
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock CRM target starting on :%s", port)
	log.Printf("  POST /export/ok      -> 200 OK")
	log.Printf("  POST /export/slow    -> 200 OK (12s delay)")
	log.Printf("  POST /export/flaky   -> 500 then 200, alternating")
	log.Printf("  POST /export/reject  -> 422 Unprocessable")
	log.Printf("  GET  /stats          -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(r *http.Request, count int64, status int) {
	fmt.Printf("[#%d] %s %s -> %d | sig=%s org=%s id=%s mode=%s attempt=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		truncate(r.Header.Get("X-Export-Signature"), 16),
		r.Header.Get("X-Export-Org"),
		truncate(r.Header.Get("X-Export-ID"), 8),
		r.Header.Get("X-Export-Mode"),
		r.Header.Get("X-Export-Attempt"),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
