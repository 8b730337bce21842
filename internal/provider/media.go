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
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/media"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// KieMedia generates images and videos through Kie's create-then-poll jobs.
type KieMedia struct {
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (p *KieMedia) run(ctx context.Context, req MediaRequest) (string, error) {
	jobs := media.NewKieJobs(req.Model.BaseURL, req.Model.APIKey, p.HTTPClient)
	poller := media.NewPoller(jobs, p.PollInterval, p.PollTimeout)
	return poller.Generate(ctx, media.TaskRequest{
		Model:       req.Model.Slug,
		Prompt:      req.Prompt,
		AspectRatio: req.Options.AspectRatio,
		Quality:     req.Options.Quality,
		Duration:    req.Options.Duration,
	})
}

// GenerateImage creates an image job and waits for its URL.
func (p *KieMedia) GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	url, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.MediaResult{ImageURL: url}, nil
}

// GenerateVideo creates a video job and waits for its URL.
func (p *KieMedia) GenerateVideo(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	url, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.MediaResult{VideoURL: url}, nil
}

const defaultFalBase = "https://fal.run"

func falBase(base string) string {
	if base == "" || strings.Contains(base, "fal.ai") || strings.Contains(base, "fal.run") {
		return defaultFalBase
	}
	return strings.TrimRight(base, "/")
}

// FalImages calls fal.ai synchronous model endpoints.
type FalImages struct {
	HTTPClient *http.Client
}

// GenerateImage requests one landscape image.
func (p *FalImages) GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	payload := map[string]interface{}{
		"prompt":     req.Prompt,
		"image_size": "landscape_16_9",
		"num_images": 1,
	}
	headers := map[string]string{"Authorization": "Key " + req.Model.APIKey}

	body, _, err := postJSON(ctx, p.HTTPClient, "fal", falBase(req.Model.BaseURL)+"/"+req.Model.Slug, headers, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		Output struct {
			URL string `json:"url"`
		} `json:"output"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "fal", err)
	}
	if len(resp.Images) > 0 && resp.Images[0].URL != "" {
		return &models.MediaResult{ImageURL: resp.Images[0].URL}, nil
	}
	if resp.Output.URL != "" {
		return &models.MediaResult{ImageURL: resp.Output.URL}, nil
	}
	return nil, apierr.New(apierr.Parse, "fal", 0, "no image URL returned")
}

const defaultHuggingFaceBase = "https://router.huggingface.co"

// HuggingFaceImages calls the HuggingFace inference router, which answers
// with raw image bytes.
type HuggingFaceImages struct {
	HTTPClient *http.Client
}

// GenerateImage requests one image and inlines it as a data URI.
func (p *HuggingFaceImages) GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	base := req.Model.BaseURL
	if base == "" || strings.Contains(base, "huggingface.co") || strings.Contains(base, "hf.co") {
		base = defaultHuggingFaceBase
	}
	url := strings.TrimRight(base, "/") + "/hf-inference/models/" + req.Model.Slug

	payload := map[string]interface{}{
		"inputs": req.Prompt,
		"parameters": map[string]interface{}{
			"num_inference_steps": 25,
			"guidance_scale":      7.5,
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + req.Model.APIKey}

	body, header, err := postJSON(ctx, p.HTTPClient, "huggingface", url, headers, payload)
	if err != nil {
		return nil, err
	}

	contentType := header.Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		return &models.MediaResult{ImageURL: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(body)}, nil
	}

	var list []struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(body, &list) == nil && len(list) > 0 && list[0].URL != "" {
		return &models.MediaResult{ImageURL: list[0].URL}, nil
	}
	var single struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(body, &single) == nil && single.URL != "" {
		return &models.MediaResult{ImageURL: single.URL}, nil
	}
	return nil, apierr.New(apierr.Parse, "huggingface", 0, "no image data returned from HuggingFace")
}

// GenericVideo calls an OpenAI-style videos/generations endpoint, falling
// back to images/generations when the aggregator has no video route.
type GenericVideo struct {
	HTTPClient *http.Client
}

// GenerateVideo requests one video.
func (p *GenericVideo) GenerateVideo(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	base := trimBase(req.Model.BaseURL, defaultOpenAIBase, true)
	headers := map[string]string{"Authorization": "Bearer " + req.Model.APIKey}

	body, _, err := postJSON(ctx, p.HTTPClient, "video", base+"/v1/videos/generations", headers, map[string]interface{}{
		"model":  req.Model.Slug,
		"prompt": req.Prompt,
	})
	if apierr.StatusCode(err) == http.StatusNotFound {
		fallback, _, fbErr := postJSON(ctx, p.HTTPClient, "video", base+"/v1/images/generations", headers, map[string]interface{}{
			"model":  req.Model.Slug,
			"prompt": req.Prompt,
			"n":      1,
		})
		if fbErr == nil {
			var resp struct {
				Data []struct {
					URL string `json:"url"`
				} `json:"data"`
			}
			if json.Unmarshal(fallback, &resp) == nil && len(resp.Data) > 0 && resp.Data[0].URL != "" {
				return &models.MediaResult{VideoURL: resp.Data[0].URL}, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
		URL      string `json:"url"`
		VideoURL string `json:"video_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "video", err)
	}

	videoURL := resp.URL
	if len(resp.Data) > 0 && resp.Data[0].URL != "" {
		videoURL = resp.Data[0].URL
	} else if videoURL == "" {
		videoURL = resp.VideoURL
	}
	if videoURL == "" {
		var pretty bytes.Buffer
		if json.Indent(&pretty, body, "", "  ") != nil {
			pretty.Write(body)
		}
		return &models.MediaResult{Content: "Video task started and returned: \n\n```json\n" + pretty.String() + "\n```"}, nil
	}
	return &models.MediaResult{VideoURL: videoURL}, nil
}

// probeKie posts an empty job to check the key. Validation failures mean
// the key was accepted.
func probeKie(ctx context.Context, client *http.Client, m models.ModelDescriptor) (string, error) {
	base := media.NewKieJobs(m.BaseURL, m.APIKey, client).BaseURL
	payload, _ := json.Marshal(map[string]interface{}{"model": m.Slug, "input": map[string]string{}})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/jobs/createTask", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return "Kie AI key accepted", nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var env struct {
		Code int `json:"code"`
	}
	_ = json.Unmarshal(body, &env)

	if isAuthStatus(resp.StatusCode) || isAuthStatus(env.Code) {
		msg := errorMessage(body)
		if msg == "" {
			msg = "Authentication failed, check your Kie AI API key"
		}
		status := resp.StatusCode
		if isAuthStatus(env.Code) {
			status = env.Code
		}
		return "", apierr.New(apierr.Transport, "kie", status, msg)
	}
	return "Kie AI key valid for " + m.Slug, nil
}

// probeFal posts a zero-image request; 401/403 means a bad key.
func probeFal(ctx context.Context, client *http.Client, m models.ModelDescriptor) (string, error) {
	payload, _ := json.Marshal(map[string]interface{}{"prompt": "test", "num_images": 0})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, falBase(m.BaseURL)+"/"+m.Slug, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+m.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return "fal.ai key accepted", nil
	}
	defer resp.Body.Close()

	if isAuthStatus(resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		msg := errorMessage(body)
		if msg == "" {
			msg = "Authentication failed, check your fal.ai API key"
		}
		return "", apierr.New(apierr.Transport, "fal", resp.StatusCode, msg)
	}
	return "fal.ai key valid for " + m.Slug, nil
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
