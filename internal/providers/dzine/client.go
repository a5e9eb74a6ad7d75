package dzine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mystorykid/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dzine: api key is required")

// The API rejects prompts beyond this length, so the client truncates instead.
const maxPromptLength = 800

// Options configures the Dzine client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Dzine task-based image generation API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     infra.Logger
}

type imagePayload struct {
	Base64Data string `json:"base64_data"`
}

type img2imgPayload struct {
	Prompt         string         `json:"prompt"`
	StyleCode      string         `json:"style_code"`
	Images         []imagePayload `json:"images"`
	StyleIntensity float64        `json:"style_intensity"`
	StructureMatch float64        `json:"structure_match"`
	FaceMatch      int            `json:"face_match"`
	QualityMode    int            `json:"quality_mode"`
	GenerateSlots  []int          `json:"generate_slots"`
	OutputFormat   string         `json:"output_format"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
}

type txt2imgPayload struct {
	Prompt         string `json:"prompt"`
	StyleCode      string `json:"style_code"`
	QualityMode    int    `json:"quality_mode"`
	GenerateSlots  []int  `json:"generate_slots"`
	OutputFormat   string `json:"output_format"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// taskCreateResponse accepts both response shapes the API is known to emit:
// task_id nested under data, or directly at the top level.
type taskCreateResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	TaskID string `json:"task_id"`
	Data   struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

type progressFields struct {
	Status      string   `json:"status"`
	Slots       []string `json:"generate_result_slots"`
	ErrorReason string   `json:"error_reason"`
}

type taskProgressResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	progressFields
	Data progressFields `json:"data"`
}

type styleListResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		List []Style `json:"list"`
	} `json:"data"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://papi.dzine.ai/openapi/v1"
	}
	var logger infra.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateImg2ImgTask submits a style transform of a reference image and
// returns the external task id to poll.
func (c *Client) CreateImg2ImgTask(ctx context.Context, req Img2ImgRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(req.StyleCode) == "" {
		return "", errors.New("dzine: style_code is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("dzine: prompt is required")
	}
	if err := validateDataURI(req.ImageData); err != nil {
		return "", err
	}
	intensity := req.StyleIntensity
	if intensity <= 0 {
		intensity = 0.8
	}
	structure := req.StructureMatch
	if structure <= 0 {
		structure = 0.8
	}
	faceMatch := 0
	if req.FaceMatch {
		faceMatch = 1
	}
	payload := img2imgPayload{
		Prompt:         truncatePrompt(prompt),
		StyleCode:      req.StyleCode,
		Images:         []imagePayload{{Base64Data: req.ImageData}},
		StyleIntensity: intensity,
		StructureMatch: structure,
		FaceMatch:      faceMatch,
		QualityMode:    1,
		GenerateSlots:  []int{1, 1},
		OutputFormat:   "webp",
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
	}
	return c.createTask(ctx, "/create_task_img2img", payload)
}

// CreateTxt2ImgTask submits a text-to-image generation and returns the
// external task id to poll.
func (c *Client) CreateTxt2ImgTask(ctx context.Context, req Txt2ImgRequest) (string, error) {
	if !c.HasCredentials() {
		return "", ErrMissingAPIKey
	}
	if strings.TrimSpace(req.StyleCode) == "" {
		return "", errors.New("dzine: style_code is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("dzine: prompt is required")
	}
	payload := txt2imgPayload{
		Prompt:         truncatePrompt(prompt),
		StyleCode:      req.StyleCode,
		QualityMode:    1,
		GenerateSlots:  []int{1, 1},
		OutputFormat:   "webp",
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
	}
	return c.createTask(ctx, "/create_task_txt2img", payload)
}

func (c *Client) createTask(ctx context.Context, endpoint string, payload any) (string, error) {
	raw, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return "", err
	}
	var decoded taskCreateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("dzine: decode response: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != 200 {
		return "", fmt.Errorf("dzine: %s (code %d)", decoded.Msg, decoded.Code)
	}
	taskID := decoded.Data.TaskID
	if taskID == "" {
		taskID = decoded.TaskID
	}
	if taskID == "" {
		return "", errors.New("dzine: response did not contain a task_id")
	}
	c.logger.Debug().Str("task_id", taskID).Str("endpoint", endpoint).Msg("dzine: created task")
	return taskID, nil
}

// GetTaskProgress polls one task and normalizes the response into the
// canonical status/result/reason triple. The payload may arrive nested under
// data or at the top level; both shapes are handled here and nowhere else.
func (c *Client) GetTaskProgress(ctx context.Context, taskID string) (TaskProgress, error) {
	if strings.TrimSpace(taskID) == "" {
		return TaskProgress{}, errors.New("dzine: task id is required")
	}
	endpoint := "/get_task_progress/" + taskID
	raw, status, err := c.get(ctx, endpoint)
	if err != nil {
		return TaskProgress{}, err
	}
	if status == http.StatusNotFound {
		// The API 404s briefly while a freshly created task initializes.
		return TaskProgress{Status: TaskStatusQueued}, nil
	}
	var decoded taskProgressResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return TaskProgress{}, fmt.Errorf("dzine: decode progress: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != 200 {
		return TaskProgress{}, fmt.Errorf("dzine: %s (code %d)", decoded.Msg, decoded.Code)
	}
	fields := decoded.Data
	if fields.Status == "" {
		fields = decoded.progressFields
	}
	canonical, ok := mapStatus(fields.Status)
	if !ok {
		return TaskProgress{}, fmt.Errorf("dzine: unknown task status %q", fields.Status)
	}
	progress := TaskProgress{Status: canonical, ErrorReason: fields.ErrorReason}
	if canonical == TaskStatusSucceeded {
		progress.ResultURL = firstResultURL(fields.Slots)
	}
	return progress, nil
}

// ListStyles fetches the style catalog.
func (c *Client) ListStyles(ctx context.Context) ([]Style, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	raw, status, err := c.get(ctx, "/style/list?page_no=0&page_size=200")
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("dzine: style list status %d", status)
	}
	var decoded styleListResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("dzine: decode style list: %w", err)
	}
	if decoded.Code != 0 && decoded.Code != 200 {
		return nil, fmt.Errorf("dzine: %s (code %d)", decoded.Msg, decoded.Code)
	}
	return decoded.Data.List, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("dzine: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dzine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dzine: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dzine: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Msg != "" {
			return nil, fmt.Errorf("dzine: %s (status %d)", detail.Msg, resp.StatusCode)
		}
		return nil, fmt.Errorf("dzine: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("dzine: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("dzine: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("dzine: read response: %w", err)
	}
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return nil, resp.StatusCode, fmt.Errorf("dzine: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, resp.StatusCode, nil
}

func truncatePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxPromptLength {
		return prompt
	}
	return string(runes[:maxPromptLength])
}

func mapStatus(status string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "waiting", "queued", "pending", "queue":
		return TaskStatusQueued, true
	case "running", "processing", "in_progress", "in progress":
		return TaskStatusProcessing, true
	case "success", "succeed", "succeeded", "completed", "done", "finish", "finished":
		return TaskStatusSucceeded, true
	case "failed", "fail", "error", "failure", "exception":
		return TaskStatusFailed, true
	default:
		return "", false
	}
}

// firstResultURL picks the first populated slot; the API returns several
// candidate output slots per task and only some are filled.
func firstResultURL(slots []string) string {
	for _, slot := range slots {
		if s := strings.TrimSpace(slot); s != "" {
			return s
		}
	}
	return ""
}

// validateDataURI ensures the reference image is a data URI with a concrete
// image MIME type. The API rejects generic or absent content types outright.
func validateDataURI(data string) error {
	if strings.TrimSpace(data) == "" {
		return errors.New("dzine: reference image is required")
	}
	if !strings.HasPrefix(data, "data:image/") {
		return errors.New("dzine: reference image must be a data URI with an image MIME type")
	}
	mime := data[len("data:"):]
	if idx := strings.IndexAny(mime, ";,"); idx >= 0 {
		mime = mime[:idx]
	}
	if mime == "image/" || mime == "image/*" {
		return errors.New("dzine: reference image MIME type must be concrete")
	}
	return nil
}

// NormalizeDataURI rewrites a data URI whose MIME type is missing or generic
// into one with a concrete image type guessed from the filename extension.
// Already-concrete image URIs pass through unchanged.
func NormalizeDataURI(data, filename string) (string, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return "", errors.New("dzine: reference image is required")
	}
	if validateDataURI(data) == nil {
		return data, nil
	}
	idx := strings.Index(data, ",")
	if !strings.HasPrefix(data, "data:") || idx < 0 {
		return "", errors.New("dzine: reference image must be a data URI")
	}
	mime := mimeForExtension(path.Ext(filename))
	if mime == "" {
		return "", fmt.Errorf("dzine: cannot determine image type for %q", filename)
	}
	return "data:" + mime + ";base64," + data[idx+1:], nil
}

func mimeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}
