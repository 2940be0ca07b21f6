package converter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/file-toolbox/internal/core/domain"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
)

const (
	DefaultTimeout = 5 * time.Minute

	reasonTransport = "conversion failed, please check your connection and retry"
	reasonTimeout   = "conversion timed out, please retry"
	reasonMalformed = "conversion failed: the server returned an incomplete response"
	reasonRejected  = "conversion failed, please retry"
)

type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Guard      *resilience.Guard
}

// Client submits batches to the remote conversion endpoint.
type Client struct {
	baseURL    string
	endpoint   string
	httpClient *http.Client
	guard      *resilience.Guard
}

func New(baseURL, endpoint string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoint:   "/" + strings.TrimLeft(endpoint, "/"),
		httpClient: httpClient,
		guard:      opts.Guard,
	}
}

type convertResponse struct {
	Status      string `json:"status"`
	DownloadURL string `json:"downloadUrl"`
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	FileCount   int    `json:"fileCount"`
}

// Submit uploads files as one multipart request. Upload progress is reported in [0,50].
func (c *Client) Submit(ctx context.Context, files []domain.FileDescriptor, onProgress ports.ProgressFunc) domain.ConversionOutcome {
	if len(files) == 0 {
		return domain.Failed("no files to convert", domain.WrapError(domain.ErrInvalidInput, "convert", errors.New("empty batch")))
	}

	var resp convertResponse
	call := func(callCtx context.Context) error {
		return c.postMultipart(callCtx, files, onProgress, &resp)
	}

	var err error
	if c.guard != nil {
		err = c.guard.Do(ctx, "converter.submit", call, recordsFailure)
	} else {
		err = call(ctx)
	}
	return toOutcome(resp, err)
}

func toOutcome(resp convertResponse, err error) domain.ConversionOutcome {
	if err != nil {
		return failureFromError(err)
	}
	if resp.Status != "success" {
		reason := strings.TrimSpace(resp.Message)
		if reason == "" {
			reason = reasonRejected
		}
		return domain.Failed(reason, domain.WrapError(domain.ErrRemoteRejection, "convert", fmt.Errorf("status=%q", resp.Status)))
	}
	if strings.TrimSpace(resp.DownloadURL) == "" {
		return domain.Failed(reasonMalformed, domain.WrapError(domain.ErrMalformedSuccess, "convert", errors.New("downloadUrl missing")))
	}
	return domain.Succeeded(resp.DownloadURL, resp.Filename, resp.Message, resp.FileCount)
}

func failureFromError(err error) domain.ConversionOutcome {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if msg := statusErr.RemoteMessage(); msg != "" {
			return domain.Failed(msg, domain.WrapError(domain.ErrRemoteRejection, "convert", err))
		}
	}
	if domain.IsKind(err, domain.ErrMalformedSuccess) {
		return domain.Failed(reasonMalformed, err)
	}
	if isTimeout(err) {
		return domain.Failed(reasonTimeout, domain.WrapError(domain.ErrTransport, "convert", err))
	}
	return domain.Failed(reasonTransport, domain.WrapError(domain.ErrTransport, "convert", err))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
