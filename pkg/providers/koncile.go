package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
	"github.com/rentora-hq/extraction-gateway/internal/logger"
	"github.com/rentora-hq/extraction-gateway/pkg/httpclient"
)

const (
	koncileProviderID = "koncile_ai"
	koncileUploadPath = "/v1/upload_file/"

	defaultUploadTimeout = 60 * time.Second
)

// KoncileConfig holds the settings required to talk to the Koncile AI API.
type KoncileConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// koncileProvider uploads documents to Koncile AI for asynchronous extraction.
type koncileProvider struct {
	baseURL string
	apiKey  string
	client  *resty.Client
	log     logger.Logger
}

// NewKoncile builds the Koncile AI provider. Construction fails when the base
// URL or API key is missing so misconfiguration surfaces at wiring time, not
// on the first upload.
func NewKoncile(cfg KoncileConfig, log logger.Logger) (Provider, error) {
	var missing []string
	if strings.TrimSpace(cfg.BaseURL) == "" {
		missing = append(missing, "base URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		missing = append(missing, "API key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("koncile config missing required setting(s): %s", strings.Join(missing, ", "))
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}

	return &koncileProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  httpclient.NewRestyHTTPClient(timeout),
		log:     log,
	}, nil
}

func (k *koncileProvider) ID() string {
	return koncileProviderID
}

// uploadResponse is the body Koncile returns on an accepted upload.
type uploadResponse struct {
	TaskIDs []string `json:"task_ids"`
}

// Upload performs a single multipart upload and maps the outcome into an
// UploadResult. It never returns an error: every failure mode collapses into
// a failed result with a diagnosable message.
func (k *koncileProvider) Upload(ctx context.Context, req UploadRequest) UploadResult {
	templateID := strings.TrimSpace(req.Metadata[domain.MetaTemplateID])
	if templateID == "" {
		k.log.ErrorObj("koncile upload missing template id", "upload_error", map[string]any{
			"document_type": req.DocumentType,
		})
		return failedResult(fmt.Sprintf("no template_id provided in metadata for document type: %s", req.DocumentType))
	}

	r := k.client.R().
		SetContext(ctx).
		SetAuthToken(k.apiKey).
		SetQueryParam("template_id", templateID).
		SetFileReader("files", path.Base(req.Filename), bytes.NewReader(req.Contents))

	if folderID := strings.TrimSpace(req.Metadata[domain.MetaFolderID]); folderID != "" {
		r.SetQueryParam("folder_id", folderID)
	}

	resp, err := r.Post(k.baseURL + koncileUploadPath)
	if err != nil {
		k.log.ErrorObj("koncile upload transport failure", "upload_error", map[string]any{
			"document_type": req.DocumentType,
			"error":         err.Error(),
		})
		return failedResult(fmt.Sprintf("network error: %v", err))
	}

	if resp.IsError() {
		return k.classifyError(req.DocumentType, resp.StatusCode(), resp.Body())
	}

	var parsed uploadResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil || len(parsed.TaskIDs) == 0 || strings.TrimSpace(parsed.TaskIDs[0]) == "" {
		// An accepted upload without a task id can never be reconciled by a
		// webhook, so it is reported as failed rather than pending.
		k.log.ErrorObj("koncile upload returned no task ids", "upload_error", map[string]any{
			"document_type": req.DocumentType,
			"body":          bodySnippet(resp.Body()),
		})
		return failedResult("provider accepted upload but returned no task id")
	}

	taskID := strings.TrimSpace(parsed.TaskIDs[0])
	k.log.InfoObj("koncile file uploaded", "upload_result", map[string]any{
		"document_type": req.DocumentType,
		"template_id":   templateID,
		"task_id":       taskID,
	})
	return pendingResult(taskID, "file uploaded successfully")
}

// classifyError maps non-2xx responses into the failure taxonomy.
func (k *koncileProvider) classifyError(docType string, statusCode int, body []byte) UploadResult {
	var message string
	switch {
	case statusCode == 401 || statusCode == 403:
		message = "authentication failed with Koncile AI"
	case statusCode == 400 || statusCode == 422:
		message = fmt.Sprintf("validation error from Koncile AI: %s", bodySnippet(body))
	case statusCode >= 500:
		message = "Koncile AI server error, try again later"
	default:
		message = fmt.Sprintf("unexpected response from Koncile AI (HTTP %d): %s", statusCode, bodySnippet(body))
	}

	k.log.ErrorObj("koncile error response", "upload_error", map[string]any{
		"document_type": docType,
		"status_code":   statusCode,
		"body":          bodySnippet(body),
	})
	return failedResult(message)
}

func bodySnippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
