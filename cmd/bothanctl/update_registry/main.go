// Command update_registry pushes a local registry file or an IPFS hash to
// a running bothand.
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
	addr := "http://localhost:8081"
	if v := os.Getenv("BOTHANCTL_REST_ADDR"); v != "" {
		addr = v
	}

	registryFile := os.Getenv("REGISTRY_FILE")
	ipfsHash := os.Getenv("REGISTRY_IPFS_HASH")
	if registryFile == "" && ipfsHash == "" {
		log.Fatal("set REGISTRY_FILE or REGISTRY_IPFS_HASH")
	}

	var body struct {
		IPFSHash string          `json:"ipfs_hash,omitempty"`
		Registry json.RawMessage `json:"registry,omitempty"`
	}

	if ipfsHash != "" {
		body.IPFSHash = ipfsHash
	} else {
		data, err := os.ReadFile(registryFile)
		if err != nil {
			log.Fatalf("read %s: %v", registryFile, err)
		}
		body.Registry = data
	}

	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("encode request: %v", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(addr+"/registry", "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("POST /registry: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("POST /registry: status %s", resp.Status)
	}
	fmt.Println("registry updated")
}
