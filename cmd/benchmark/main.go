package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Hammers the purchase endpoint with competing buyers to measure contention:
// every listed invoice must be won by exactly one buyer, everyone else gets
// a conflict.
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	seller      int64
	buyerBase   int64
)

var (
	totalRequests uint64
	wins          uint64
	conflicts     uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent buyers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Int64Var(&seller, "seller", 1, "Seller account id")
	flag.Int64Var(&buyerBase, "buyer-base", 100, "First buyer account id; workers use base..base+workers-1")
}

func main() {
	flag.Parse()
	log.Printf("Starting benchmark | workers: %d | duration: %s", concurrency, duration)

	client := &http.Client{Timeout: 5 * time.Second}
	sellerToken := mintToken(client, seller)

	stop := time.After(duration)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lister(client, sellerToken, stop)
	}()

	var wg sync.WaitGroup
	wg.Add(concurrency)
	start := time.Now()
	for i := 0; i < concurrency; i++ {
		token := mintToken(client, buyerBase+int64(i))
		go worker(&wg, client, token, start)
	}
	wg.Wait()
	<-done
	printResults(time.Since(start))
}

func mintToken(client *http.Client, account int64) string {
	body, _ := json.Marshal(map[string]int64{"account_id": account})
	resp, err := client.Post(targetURL+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("token mint failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatalf("token decode failed: %v", err)
	}
	return out["token"]
}

// lister keeps fresh invoices on the market until the test window closes.
func lister(client *http.Client, token string, stop <-chan time.Time) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		body, _ := json.Marshal(map[string]interface{}{
			"debtor":            int64(2),
			"original_amount":   int64(10_000 + rand.Intn(90_000)),
			"discount_rate_bps": int64(500 + rand.Intn(1500)),
			"due_height":        int64(1 << 40), // far future
		})
		req, _ := http.NewRequest("POST", targetURL+"/api/v1/invoices", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func worker(wg *sync.WaitGroup, client *http.Client, token string, start time.Time) {
	defer wg.Done()

	for time.Since(start) < duration {
		id, ok := pickOpenInvoice(client)
		if !ok {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		req, _ := http.NewRequest("POST", fmt.Sprintf("%s/api/v1/invoices/%d/purchase", targetURL, id), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&wins, 1)
		case http.StatusConflict:
			atomic.AddUint64(&conflicts, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func pickOpenInvoice(client *http.Client) (int64, bool) {
	resp, err := client.Get(targetURL + "/api/v1/invoices")
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	var invoices []struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&invoices); err != nil || len(invoices) == 0 {
		return 0, false
	}
	return invoices[rand.Intn(len(invoices))].ID, true
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("--- Benchmark Results ---")
	fmt.Printf("Elapsed:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Attempts:       %d (%.1f/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Purchases won:  %d\n", atomic.LoadUint64(&wins))
	fmt.Printf("Conflicts:      %d\n", atomic.LoadUint64(&conflicts))
	fmt.Printf("Other failures: %d\n", atomic.LoadUint64(&failOther))
}
