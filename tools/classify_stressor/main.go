// classifier/tools/classify_stressor/main.go

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type stressor struct {
	baseURL string
	client  *http.Client
	fields  []string

	sent    atomic.Int64
	failed  atomic.Int64
	matched atomic.Int64
}

func newStressor(baseURL string) *stressor {
	return &stressor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// loadFields asks the service which fields its rules reference.
func (s *stressor) loadFields(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/fields", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching fields: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching fields: status %d", resp.StatusCode)
	}

	var body struct {
		Fields []string `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding fields: %w", err)
	}
	s.fields = body.Fields
	if len(s.fields) == 0 {
		s.fields = []string{"text"}
	}
	return nil
}

func (s *stressor) randomRecord() map[string]string {
	record := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		words := make([]string, 12)
		for i := range words {
			words[i] = gofakeit.Word()
		}
		record[f] = strings.Join(words, " ")
	}
	return record
}

// classifyOnce posts one random record and returns the categories matched.
func (s *stressor) classifyOnce(ctx context.Context) ([]string, error) {
	s.sent.Add(1)
	payload, err := json.Marshal(s.randomRecord())
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/", bytes.NewReader(payload))
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.failed.Add(1)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.failed.Add(1)
		return nil, fmt.Errorf("classify: status %d", resp.StatusCode)
	}

	var body struct {
		Categories []string `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.failed.Add(1)
		return nil, err
	}
	s.matched.Add(int64(len(body.Categories)))
	return body.Categories, nil
}

func (s *stressor) run(ctx context.Context, rate int) {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go func() {
				if _, err := s.classifyOnce(ctx); err != nil && ctx.Err() == nil {
					fmt.Printf("Error classifying record: %v\n", err)
				}
			}()
		}
	}
}

func (s *stressor) summary() string {
	return fmt.Sprintf("sent=%d failed=%d categories matched=%d", s.sent.Load(), s.failed.Load(), s.matched.Load())
}

func main() {
	baseURL := flag.String("url", "http://localhost:9090", "Classifier service URL")
	rate := flag.Int("rate", 10, "Number of classify requests per second")
	duration := flag.Duration("duration", 0, "How long to run, 0 runs until interrupted")
	flag.Parse()

	if *rate <= 0 {
		fmt.Println("rate must be positive")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	s := newStressor(*baseURL)
	if err := s.loadFields(ctx); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Classifying records with fields %v at %d per second\n", s.fields, *rate)
	s.run(ctx, *rate)
	fmt.Println(s.summary())
}
