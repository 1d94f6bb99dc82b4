package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoggerWithLevel(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		expectedBody string
	}{
		{
			name:         "2xx success",
			statusCode:   http.StatusOK,
			expectedBody: "success",
		},
		{
			name:         "4xx client error",
			statusCode:   http.StatusBadRequest,
			expectedBody: "client error",
		},
		{
			name:         "5xx server error",
			statusCode:   http.StatusInternalServerError,
			expectedBody: "server error",
		},
	}

	logger := zap.NewNop()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := LoggerWithLevel(logger)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.expectedBody))
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			middleware(handler).ServeHTTP(w, req)

			if w.Code != tt.statusCode {
				t.Errorf("expected status %v, got %v", tt.statusCode, w.Code)
			}
			if body := w.Body.String(); body != tt.expectedBody {
				t.Errorf("expected '%v', got %v", tt.expectedBody, body)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	wrapped := wrapResponseWriter(w)

	if wrapped.Status() != 0 {
		t.Errorf("expected initial status 0, got %v", wrapped.Status())
	}

	wrapped.WriteHeader(http.StatusOK)
	if wrapped.Status() != http.StatusOK {
		t.Errorf("expected status OK, got %v", wrapped.Status())
	}

	// Duplicate WriteHeader must not overwrite the recorded status
	wrapped.WriteHeader(http.StatusInternalServerError)
	if wrapped.Status() != http.StatusOK {
		t.Errorf("expected status to stay OK, got %v", wrapped.Status())
	}
}

func TestRecovery(t *testing.T) {
	logger := zap.NewNop()
	middleware := Recovery(logger)

	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("success"))
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "panic with string",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic("test panic")
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name: "panic with error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				panic(http.ErrAbortHandler)
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			w := httptest.NewRecorder()

			middleware(tt.handler).ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %v, got %v", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	logger := zap.NewNop()
	middleware := RateLimit(1, 2, logger)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := middleware(handler)

	// Burst of 2 passes, the third is rejected
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status OK, got %v", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.1:12345"
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %v", w.Code)
	}

	// A different IP has its own bucket
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "10.0.0.2:12345"
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status OK for fresh IP, got %v", w.Code)
	}
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, zap.NewNop())

	// Concurrent requests from one IP touch the shared entry's last-access
	// timestamp; cleanup reads it at the same time.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rl.Allow("10.0.0.1")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			rl.cleanupStaleLimiters()
		}
	}()
	wg.Wait()

	if rl.LimiterCount() != 1 {
		t.Errorf("expected 1 limiter, got %d", rl.LimiterCount())
	}
}

func TestRateLimiterCleanupRemovesStale(t *testing.T) {
	rl := NewRateLimiter(1, 1, zap.NewNop())
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.mu.Lock()
	rl.limiters["10.0.0.1"].lastAccess.Store(time.Now().Add(-time.Hour).UnixNano())
	rl.mu.Unlock()

	rl.cleanupStaleLimiters()

	if rl.LimiterCount() != 1 {
		t.Fatalf("expected 1 limiter after cleanup, got %d", rl.LimiterCount())
	}
	rl.mu.RLock()
	_, kept := rl.limiters["10.0.0.2"]
	rl.mu.RUnlock()
	if !kept {
		t.Error("fresh limiter was removed")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		expected   string
	}{
		{"remote addr only", "192.168.1.1:1234", "", "", "192.168.1.1"},
		{"x-forwarded-for", "10.0.0.1:1234", "203.0.113.5", "", "203.0.113.5"},
		{"x-forwarded-for chain", "10.0.0.1:1234", "203.0.113.5, 10.0.0.2", "", "203.0.113.5"},
		{"x-real-ip", "10.0.0.1:1234", "", "203.0.113.9", "203.0.113.9"},
		{"spoofed xff falls through", "10.0.0.1:1234", "not-an-ip", "", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := extractClientIP(req); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	middleware := CORS([]string{"https://app.example.com"})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected allowed origin header, got %q", got)
	}

	// Disallowed origin gets no CORS headers
	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", got)
	}

	// Preflight short-circuits
	req = httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected preflight 200, got %v", w.Code)
	}
}
