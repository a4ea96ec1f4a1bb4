package entropy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNilSourceFloatRange(t *testing.T) {
	var s *Source
	for i := 0; i < 1000; i++ {
		v := s.Float()
		if v < 0 || v >= 1 {
			t.Fatalf("Float() = %v, out of [0, 1)", v)
		}
	}
}

func TestIntNBounds(t *testing.T) {
	var s *Source
	for i := 0; i < 1000; i++ {
		v := s.IntN(7)
		if v < 0 || v >= 7 {
			t.Fatalf("IntN(7) = %d, out of range", v)
		}
	}
	if s.IntN(0) != 0 || s.IntN(-3) != 0 {
		t.Fatal("IntN of non-positive n must return 0")
	}
}

func TestChanceExtremes(t *testing.T) {
	var s *Source
	if s.Chance(0) {
		t.Fatal("Chance(0) fired")
	}
	if s.Chance(-1) {
		t.Fatal("Chance(-1) fired")
	}
	if !s.Chance(1) {
		t.Fatal("Chance(1) did not fire")
	}
}

func TestNewSourceWithoutKey(t *testing.T) {
	if NewSource("") != nil {
		t.Fatal("empty API key should disable the pooled source")
	}
}

func TestPooledDrawsConsumeBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Method != "generateDecimalFractions" || req.Params.APIKey != "k" {
			t.Errorf("request = %+v", req)
		}
		data := make([]float64, req.Params.N)
		for i := range data {
			data[i] = float64(i) / float64(req.Params.N)
		}
		var reply rpcReply
		reply.Result.Random.Data = data
		json.NewEncoder(w).Encode(reply)
	}))
	defer srv.Close()

	s := NewSource("k")
	s.endpoint = srv.URL
	s.client = srv.Client()

	if got := s.Float(); got != 0.0 {
		t.Fatalf("first pooled draw = %v, want 0.0", got)
	}
	if got := s.Float(); got != 0.01 {
		t.Fatalf("second pooled draw = %v, want 0.01", got)
	}
}

func TestPooledSourceFallsBackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"code": 401, "message": "bad key"}}`))
	}))
	defer srv.Close()

	s := NewSource("k")
	s.endpoint = srv.URL
	s.client = srv.Client()

	for i := 0; i < 100; i++ {
		v := s.Float()
		if v < 0 || v >= 1 {
			t.Fatalf("fallback draw = %v, out of [0, 1)", v)
		}
	}
}
