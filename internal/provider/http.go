package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// postJSON sends payload to url and returns the raw response body. Non-2xx
// responses become transport errors carrying the body's status and message.
func postJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, payload interface{}) ([]byte, http.Header, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.Transport, provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.Transport, provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, statusError(provider, resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

// statusError builds a transport error from a failed response body.
func statusError(provider string, status int, body []byte) *apierr.Error {
	msg := errorMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("API error: %d", status)
	}
	if code := nestedErrorCode(body); code != 0 {
		status = code
	}
	return apierr.New(apierr.Transport, provider, status, msg)
}

// errorMessage digs a human-readable message out of the usual error shapes.
func errorMessage(body []byte) string {
	var shape struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
		Msg     string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return strings.TrimSpace(string(body))
	}

	if len(shape.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(shape.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(shape.Error, &flat) == nil && flat != "" {
			return flat
		}
	}
	if shape.Message != "" {
		return shape.Message
	}
	if len(shape.Detail) > 0 {
		var detail string
		if json.Unmarshal(shape.Detail, &detail) == nil && detail != "" {
			return detail
		}
	}
	return shape.Msg
}

// nestedErrorCode returns error.code when it is a valid HTTP status.
func nestedErrorCode(body []byte) int {
	var shape struct {
		Error struct {
			Code json.RawMessage `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &shape) != nil || len(shape.Error.Code) == 0 {
		return 0
	}
	var code float64
	if json.Unmarshal(shape.Error.Code, &code) != nil {
		return 0
	}
	if code >= 100 && code <= 599 {
		return int(code)
	}
	return 0
}

// embeddedError detects HTTP 200 bodies that report failure through a
// top-level numeric code field.
func embeddedError(provider string, body []byte) error {
	var shape struct {
		Code    json.RawMessage `json:"code"`
		Msg     string          `json:"msg"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &shape) != nil || len(shape.Code) == 0 {
		return nil
	}
	var code float64
	if json.Unmarshal(shape.Code, &code) != nil || code == 0 || code == 200 {
		return nil
	}

	msg := shape.Msg
	if msg == "" {
		var flat string
		if json.Unmarshal(shape.Error, &flat) == nil {
			msg = flat
		}
	}
	if msg == "" {
		msg = shape.Message
	}
	if msg == "" {
		msg = fmt.Sprintf("Provider API error: code %d", int(code))
	}
	return apierr.New(apierr.ProviderLogic, provider, int(code), msg)
}

// dataURI encodes an inline image for providers that take image URLs.
func dataURI(img models.ImageAttachment) string {
	return "data:" + img.MimeType + ";base64," + img.Base64
}

// FetchAsBase64 resolves an image reference (data URI or http URL) into
// inline base64 so it can be replayed as multimodal input.
func FetchAsBase64(ctx context.Context, client *http.Client, ref string) (models.ImageAttachment, error) {
	if strings.HasPrefix(ref, "data:") {
		header, data, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return models.ImageAttachment{}, fmt.Errorf("unsupported data URI")
		}
		return models.ImageAttachment{MimeType: strings.TrimSuffix(header, ";base64"), Base64: data}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return models.ImageAttachment{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.ImageAttachment{}, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ImageAttachment{}, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ImageAttachment{}, fmt.Errorf("failed to read image: %w", err)
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return models.ImageAttachment{MimeType: mime, Base64: base64.StdEncoding.EncodeToString(data)}, nil
}
