// Command get_info prints the signal ids a running bothand has loaded
// from its currently installed registry.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := "http://localhost:8081"
	if v := os.Getenv("BOTHANCTL_REST_ADDR"); v != "" {
		addr = v
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(addr + "/info")
	if err != nil {
		log.Fatalf("GET /info: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("GET /info: status %s", resp.Status)
	}

	var result struct {
		SignalIDs []string `json:"signal_ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode response: %v", err)
	}

	for _, id := range result.SignalIDs {
		fmt.Println(id)
	}
}
