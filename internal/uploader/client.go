package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type sessionRequest struct {
	Filename string `json:"filename"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// Session mirrors the API's upload session.
type Session struct {
	UploadURL  string            `json:"uploadUrl"`
	StorageKey string            `json:"storageKey"`
	PublicURL  string            `json:"publicUrl"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	Protocol   string            `json:"protocol"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

type registerRequest struct {
	LocketID      string     `json:"locket_id"`
	MemoryGroupID *string    `json:"memory_group_id,omitempty"`
	Filename      string     `json:"filename"`
	StorageKey    string     `json:"storage_key"`
	StorageURL    string     `json:"storage_url"`
	FileType      string     `json:"file_type"`
	FileSize      int64      `json:"file_size"`
	Width         *int       `json:"width,omitempty"`
	Height        *int       `json:"height,omitempty"`
	TakenAt       *time.Time `json:"taken_at,omitempty"`
	Caption       *string    `json:"caption,omitempty"`
}

// Media is the registered media item as returned by the API.
type Media struct {
	ID            string `json:"id"`
	MemoryGroupID string `json:"memoryGroupId"`
	StorageKey    string `json:"storageKey"`
	URL           string `json:"url"`
}

type groupRequest struct {
	LocketID    string  `json:"locket_id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type group struct {
	ID string `json:"id"`
}

type pinRequest struct {
	MemoryID string `json:"memory_id"`
}

// api talks JSON to the corner API.
type api struct {
	base  string
	token string
	http  *http.Client
}

func (a *api) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(a.base, "/")+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}
