// Package enrich provides optional model-backed summarisation of extracted
// opportunities. The pipeline works without it; a heuristic summary covers
// every item the enricher does not.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/david/fundingradar/internal/ingest"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b"
)

// OllamaEnricher calls a local Ollama instance in JSON mode.
type OllamaEnricher struct {
	Host   string
	Model  string
	Client *http.Client
}

func NewOllamaEnricher() *OllamaEnricher {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = defaultOllamaHost
	}
	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaEnricher{
		Host:   strings.TrimRight(host, "/"),
		Model:  model,
		Client: &http.Client{Timeout: 90 * time.Second},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type enrichmentPayload struct {
	Summary      string   `json:"summary"`
	Fit          []string `json:"fit"`
	WatchOut     []string `json:"watch_out"`
	Levels       []string `json:"levels"`
	CareerStages []string `json:"career_stages"`
}

func (e *OllamaEnricher) Enrich(ctx context.Context, opp ingest.Opportunity, supporting string) (ingest.Enrichment, error) {
	prompt := buildPrompt(opp, supporting)

	body, err := json.Marshal(generateRequest{Model: e.Model, Prompt: prompt, Format: "json", Stream: false})
	if err != nil {
		return ingest.Enrichment{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return ingest.Enrichment{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return ingest.Enrichment{}, fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ingest.Enrichment{}, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return ingest.Enrichment{}, fmt.Errorf("decoding response: %w", err)
	}

	var payload enrichmentPayload
	if err := json.Unmarshal([]byte(gen.Response), &payload); err != nil {
		return ingest.Enrichment{}, fmt.Errorf("decoding model output: %w", err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return ingest.Enrichment{}, fmt.Errorf("model returned empty summary")
	}

	enr := ingest.Enrichment{
		SummaryText: payload.Summary,
		Fit:         payload.Fit,
		WatchOut:    payload.WatchOut,
		Model:       e.Model,
	}
	if len(payload.Levels) > 0 || len(payload.CareerStages) > 0 {
		enr.Eligibility = &ingest.Eligibility{Levels: payload.Levels, CareerStages: payload.CareerStages}
	}
	return enr, nil
}

func buildPrompt(opp ingest.Opportunity, supporting string) string {
	var sb strings.Builder
	sb.WriteString("You summarise research funding opportunities for an academic audience.\n")
	sb.WriteString("Respond with a JSON object: {\"summary\", \"fit\", \"watch_out\", \"levels\", \"career_stages\"}.\n")
	sb.WriteString("summary: two sentences on what is funded. fit: a list of who should apply. watch_out: a list of pitfalls, possibly empty.\n\n")
	fmt.Fprintf(&sb, "Title: %s\nFunder: %s\nType: %s\n", opp.Title, opp.SourceName, opp.Type)
	if opp.Deadline != "" {
		fmt.Fprintf(&sb, "Deadline: %s\n", opp.Deadline)
	}
	if opp.Amount != "" {
		fmt.Fprintf(&sb, "Amount: %s\n", opp.Amount)
	}
	if supporting != "" {
		fmt.Fprintf(&sb, "\nPage text:\n%s\n", ingest.TruncateText(supporting, 3000))
	}
	return sb.String()
}
