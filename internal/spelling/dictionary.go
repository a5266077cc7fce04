// Package spelling normalizes misspelled words in an utterance before it
// is matched or learned.
package spelling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Dictionary is the external spelling service.
type Dictionary interface {
	IsCorrect(ctx context.Context, word string) (bool, error)
	// Suggestions are ordered best first.
	Suggestions(ctx context.Context, word string) ([]string, error)
	// Correction is the single most likely statistical correction.
	Correction(ctx context.Context, word string) (string, error)
	// Candidates is the statistical corrector's full candidate set.
	Candidates(ctx context.Context, word string) ([]string, error)
}

// HTTPDictionary talks to a spelling service exposing GET /check,
// /suggest, /correction and /candidates, each taking a word query
// parameter.
type HTTPDictionary struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPDictionary(baseURL string, timeout time.Duration) *HTTPDictionary {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDictionary{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDictionary) get(ctx context.Context, path, word string, out any) error {
	u := d.baseURL + path + "?word=" + url.QueryEscape(word)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spelling %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read spelling response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spelling %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode spelling response: %w", err)
	}
	return nil
}

func (d *HTTPDictionary) IsCorrect(ctx context.Context, word string) (bool, error) {
	var r struct {
		Correct bool `json:"correct"`
	}
	err := d.get(ctx, "/check", word, &r)
	return r.Correct, err
}

func (d *HTTPDictionary) Suggestions(ctx context.Context, word string) ([]string, error) {
	var r struct {
		Suggestions []string `json:"suggestions"`
	}
	err := d.get(ctx, "/suggest", word, &r)
	return r.Suggestions, err
}

func (d *HTTPDictionary) Correction(ctx context.Context, word string) (string, error) {
	var r struct {
		Correction string `json:"correction"`
	}
	err := d.get(ctx, "/correction", word, &r)
	return r.Correction, err
}

func (d *HTTPDictionary) Candidates(ctx context.Context, word string) ([]string, error) {
	var r struct {
		Candidates []string `json:"candidates"`
	}
	err := d.get(ctx, "/candidates", word, &r)
	return r.Candidates, err
}
