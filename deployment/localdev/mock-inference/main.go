package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func classify(report string) map[string]any {
	lower := strings.ToLower(report)

	incidentType := "OTHER"
	severity := "MINOR"
	priority := 5
	switch {
	case strings.Contains(lower, "fire"):
		incidentType, severity, priority = "FIRE", "CRITICAL", 9
	case strings.Contains(lower, "crash") || strings.Contains(lower, "collision"):
		incidentType, severity, priority = "TRAFFIC", "MAJOR", 7
	case strings.Contains(lower, "injur") || strings.Contains(lower, "medical"):
		incidentType, severity, priority = "MEDICAL", "MAJOR", 8
	case strings.Contains(lower, "theft") || strings.Contains(lower, "assault"):
		incidentType, severity, priority = "POLICE", "MAJOR", 6
	}

	return map[string]any{
		"summary":        strings.TrimSpace(report),
		"type":           incidentType,
		"severity":       severity,
		"priority_score": priority,
		"coords":         map[string]float64{"lat": 37.7793, "lng": -122.4193},
	}
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "gpt-4o-mini", "object": "model", "owned_by": "mock"},
			},
		})
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		report := ""
		for _, msg := range req.Messages {
			if msg.Role == "user" {
				report = msg.Content
			}
		}

		payload, err := json.Marshal(classify(report))
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := chatResponse{
			ID:      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   req.Model,
		}
		choice := chatChoice{FinishReason: "stop"}
		choice.Message.Role = "assistant"
		choice.Message.Content = string(payload)
		resp.Choices = append(resp.Choices, choice)
		writeJSON(w, resp)
	})

	logger := log.New(log.Writer(), "inference-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8081",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8081")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
