// Command get_prices queries a running bothand for the current price of
// one or more signal ids, passed as command-line arguments.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s SIGNAL_ID [SIGNAL_ID ...]", os.Args[0])
	}

	addr := "http://localhost:8081"
	if v := os.Getenv("BOTHANCTL_REST_ADDR"); v != "" {
		addr = v
	}

	ids := os.Args[1:]
	reqURL := addr + "/prices?ids=" + url.QueryEscape(strings.Join(ids, ","))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(reqURL)
	if err != nil {
		log.Fatalf("GET /prices: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("GET /prices: status %s", resp.Status)
	}

	var result struct {
		Results []struct {
			SignalID string `json:"signal_id"`
			Status   string `json:"status"`
			Price    *int64 `json:"price,omitempty"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode response: %v", err)
	}

	for _, r := range result.Results {
		if r.Price != nil {
			fmt.Printf("%s\t%s\t%d\n", r.SignalID, r.Status, *r.Price)
		} else {
			fmt.Printf("%s\t%s\t-\n", r.SignalID, r.Status)
		}
	}
}
