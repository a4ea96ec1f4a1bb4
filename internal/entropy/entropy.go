// Package entropy is the randomness source behind scripted market events.
// When a random.org API key is configured, draws come from a locally pooled
// batch of true random fractions; otherwise crypto/rand serves as the
// fallback. Event outcomes should not be predictable from the process seed.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	rpcEndpoint = "https://api.random.org/json-rpc/4/invoke"
	batchSize   = 100
	poolLow     = 10
)

// Source draws uniform random numbers for event selection.
type Source struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu   sync.Mutex
	pool []float64
}

// NewSource creates a source backed by random.org. An empty API key returns
// nil; the package functions treat a nil source as crypto/rand only.
func NewSource(apiKey string) *Source {
	if apiKey == "" {
		return nil
	}
	return &Source{
		apiKey:   apiKey,
		endpoint: rpcEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a uniform float64 in [0, 1). The local pool refills from
// random.org when it runs low; any API failure falls back to crypto/rand.
func (s *Source) Float() float64 {
	if s == nil {
		return cryptoFloat()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pool) < poolLow {
		batch, err := s.fetchBatch()
		if err != nil {
			slog.Debug("random.org refill failed", "error", err)
		} else {
			s.pool = append(s.pool, batch...)
		}
	}
	if len(s.pool) == 0 {
		return cryptoFloat()
	}

	v := s.pool[0]
	s.pool = s.pool[1:]
	return v
}

// IntN returns a uniform int in [0, n). n <= 0 returns 0.
func (s *Source) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	v := int(s.Float() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// Chance reports a draw below p, i.e. an event with probability p.
func (s *Source) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float() < p
}

// rpcRequest is the random.org generateDecimalFractions call envelope.
type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int       `json:"id"`
}

type rpcParams struct {
	APIKey        string `json:"apiKey"`
	N             int    `json:"n"`
	DecimalPlaces int    `json:"decimalPlaces"`
}

type rpcReply struct {
	Result struct {
		Random struct {
			Data []float64 `json:"data"`
		} `json:"random"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// fetchBatch requests one batch of decimal fractions from random.org.
// Callers hold the lock.
func (s *Source) fetchBatch() ([]float64, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "generateDecimalFractions",
		Params: rpcParams{
			APIKey:        s.apiKey,
			N:             batchSize,
			DecimalPlaces: 6,
		},
		ID: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("api error %d: %s", reply.Error.Code, reply.Error.Message)
	}
	if len(reply.Result.Random.Data) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	return reply.Result.Random.Data, nil
}

// cryptoFloat draws a uniform float64 in [0, 1) from crypto/rand.
func cryptoFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; 0.5 keeps the
		// caller's math sane if it somehow does.
		return 0.5
	}
	// 53 bits for a uniform mantissa.
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
