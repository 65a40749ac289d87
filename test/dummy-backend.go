package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Local stand-in for an OpenAI-compatible backend. Point BACKEND_BASE_URL at
// http://localhost:3001 and set any BACKEND_API_KEY.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		promptChars := 0
		question := ""
		for _, m := range req.Messages {
			promptChars += len(m.Content)
			if m.Role == "user" {
				question = m.Content
			}
		}
		logger.Info("completion requested", "model", req.Model, "question", question)

		answer := "You asked: " + question + ". The answer is 42."
		promptTokens := (promptChars + 3) / 4
		completionTokens := (len(answer) + 3) / 4

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-dummy",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
			"usage": map[string]any{
				"prompt_tokens":     promptTokens,
				"completion_tokens": completionTokens,
				"total_tokens":      promptTokens + completionTokens,
			},
		})
	})

	http.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"dummy","object":"model","created":0,"owned_by":"local"}]}`))
	})

	logger.Info("dummy backend starting", "addr", ":3001")
	if err := http.ListenAndServe(":3001", nil); err != nil {
		logger.Error("dummy backend stopped", "error", err)
		os.Exit(1)
	}
}
