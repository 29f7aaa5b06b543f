// Command trigger asks a running server to start a scan.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	var (
		baseURL = flag.String("url", envOr("SERVER_URL", "http://localhost:8080"), "server base url")
		secret  = flag.String("secret", os.Getenv("ADMIN_SECRET"), "admin secret")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("admin secret required (flag -secret or ADMIN_SECRET)")
	}

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/api/v1/run", nil)
	if err != nil {
		log.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Admin-Secret", *secret)

	client := &http.Client{Timeout: 15 * time.Minute}
	log.Printf("triggering run at %s", *baseURL)
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("calling server: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("run failed (%d): %s", resp.StatusCode, body)
	}
	fmt.Println(string(body))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
