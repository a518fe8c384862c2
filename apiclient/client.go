// Package apiclient is the HTTP client for the remote personal-data store.
// It speaks a small REST surface: stream creation, batched event creation,
// filtered event reads, deletes, and multipart attachment uploads.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/vitalbridge/go-healthsync/core"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

const streamExistsErrorID = "item-already-exists"

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if c == nil || doer == nil {
			return
		}
		c.client = doer
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if c == nil || logger == nil {
			return
		}
		c.logger = logger
	}
}

func WithResponseBodyLimit(limit int64) Option {
	return func(c *Client) {
		if c == nil || limit <= 0 {
			return
		}
		c.maxBodyBytes = limit
	}
}

type Client struct {
	baseURL      string
	authToken    string
	client       HTTPDoer
	logger       core.Logger
	maxBodyBytes int64
}

func New(cfg core.APIConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("apiclient: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("apiclient: invalid base url: %w", err)
	}

	_, logger := glog.Resolve("healthsync.apiclient", nil, nil)
	client := &Client{
		baseURL:      baseURL,
		authToken:    strings.TrimSpace(cfg.AuthToken),
		client:       &http.Client{Timeout: defaultClientTimeout},
		logger:       logger,
		maxBodyBytes: defaultResponseBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) CreateStream(ctx context.Context, descriptor core.StreamDescriptor) error {
	descriptor.ID = strings.TrimSpace(descriptor.ID)
	if descriptor.ID == "" {
		return apiError("apiclient: stream id is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	name := strings.TrimSpace(descriptor.Name)
	if name == "" {
		name = descriptor.ID
	}
	payload := wireStream{ID: descriptor.ID, Name: name}
	if parent := strings.TrimSpace(descriptor.ParentID); parent != "" {
		payload.ParentID = &parent
	}

	status, body, err := c.do(ctx, http.MethodPost, "/streams", nil, payload)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	if remote := decodeError(body); remote != nil && remote.ID == streamExistsErrorID {
		return core.ErrStreamExists
	}
	if status == http.StatusConflict {
		return core.ErrStreamExists
	}
	return remoteStatusError("create stream", status, body)
}

func (c *Client) BatchCreateEvents(ctx context.Context, events []core.CanonicalEvent) (core.BatchResult, error) {
	if len(events) == 0 {
		return core.BatchResult{}, nil
	}

	calls := make([]wireBatchCall, 0, len(events))
	for _, event := range events {
		calls = append(calls, wireBatchCall{
			Method: "events.create",
			Params: toWireEvent(event),
		})
	}

	status, body, err := c.do(ctx, http.MethodPost, "/", nil, calls)
	if err != nil {
		return core.BatchResult{}, err
	}
	if status < 200 || status >= 300 {
		return core.BatchResult{}, remoteStatusError("batch create events", status, body)
	}

	var response wireBatchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return core.BatchResult{}, apiWrapError(err, goerrors.CategoryExternal,
			"apiclient: decode batch response", http.StatusBadGateway, nil)
	}

	result := core.BatchResult{}
	for i, entry := range response.Results {
		switch {
		case entry.Error != nil:
			result.Errors = append(result.Errors, core.BatchError{Index: i, Message: entry.Error.Message})
		case entry.Event != nil:
			result.Created = append(result.Created, entry.Event.toDomain())
		default:
			result.Errors = append(result.Errors, core.BatchError{Index: i, Message: "empty batch result entry"})
		}
	}
	return result, nil
}

func (c *Client) GetEvents(ctx context.Context, filter core.EventsFilter) (core.EventsPage, error) {
	query := url.Values{}
	for _, streamID := range filter.StreamIDs {
		query.Add("streams[]", streamID)
	}
	for _, eventType := range filter.Types {
		query.Add("types[]", eventType)
	}
	for _, tag := range filter.Tags {
		query.Add("tags[]", tag)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.ModifiedSince != nil {
		query.Set("modifiedSince", strconv.FormatFloat(toEpoch(*filter.ModifiedSince), 'f', -1, 64))
	}

	status, body, err := c.do(ctx, http.MethodGet, "/events", query, nil)
	if err != nil {
		return core.EventsPage{}, err
	}
	if status < 200 || status >= 300 {
		return core.EventsPage{}, remoteStatusError("get events", status, body)
	}

	var response wireEventsPage
	if err := json.Unmarshal(body, &response); err != nil {
		return core.EventsPage{}, apiWrapError(err, goerrors.CategoryExternal,
			"apiclient: decode events response", http.StatusBadGateway, nil)
	}

	page := core.EventsPage{}
	for _, event := range response.Events {
		page.Events = append(page.Events, event.toDomain())
	}
	if response.Meta.ServerTime != 0 {
		page.ServerTime = fromEpoch(response.Meta.ServerTime)
	}
	return page, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apiError("apiclient: event id is required", goerrors.CategoryBadInput, http.StatusBadRequest, nil)
	}
	status, body, err := c.do(ctx, http.MethodDelete, "/events/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if status >= 200 && status < 300 {
		return nil
	}
	return remoteStatusError("delete event", status, body)
}

func (c *Client) CreateEventWithAttachment(
	ctx context.Context,
	event core.CanonicalEvent,
	attachment core.Attachment,
) (core.CanonicalEvent, error) {
	if len(attachment.Bytes) == 0 {
		return core.CanonicalEvent{}, apiError(
			"apiclient: attachment bytes are required",
			goerrors.CategoryBadInput, http.StatusBadRequest, nil,
		)
	}

	eventJSON, err := json.Marshal(toWireEvent(event))
	if err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryBadInput,
			"apiclient: encode event", http.StatusBadRequest, nil)
	}

	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	if err := writer.WriteField("event", string(eventJSON)); err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryInternal,
			"apiclient: write event part", http.StatusInternalServerError, nil)
	}
	filename := strings.TrimSpace(attachment.Filename)
	if filename == "" {
		filename = "attachment"
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryInternal,
			"apiclient: create attachment part", http.StatusInternalServerError, nil)
	}
	if _, err := part.Write(attachment.Bytes); err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryInternal,
			"apiclient: write attachment part", http.StatusInternalServerError, nil)
	}
	if err := writer.Close(); err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryInternal,
			"apiclient: finalize multipart body", http.StatusInternalServerError, nil)
	}

	status, body, err := c.doRaw(ctx, http.MethodPost, "/events", nil, buffer.Bytes(), writer.FormDataContentType())
	if err != nil {
		return core.CanonicalEvent{}, err
	}
	if status < 200 || status >= 300 {
		return core.CanonicalEvent{}, remoteStatusError("create event with attachment", status, body)
	}

	var response struct {
		Event wireEvent `json:"event"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return core.CanonicalEvent{}, apiWrapError(err, goerrors.CategoryExternal,
			"apiclient: decode event response", http.StatusBadGateway, nil)
	}
	return response.Event.toDomain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	var body []byte
	contentType := ""
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, apiWrapError(err, goerrors.CategoryBadInput,
				"apiclient: encode request body", http.StatusBadRequest, nil)
		}
		body = encoded
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, query, body, contentType)
}

func (c *Client) doRaw(
	ctx context.Context,
	method, path string,
	query url.Values,
	body []byte,
	contentType string,
) (int, []byte, error) {
	if c == nil || c.client == nil {
		return 0, nil, apiError("apiclient: client is not configured",
			goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, apiWrapError(err, goerrors.CategoryBadInput,
			"apiclient: create http request", http.StatusBadRequest,
			map[string]any{"method": method, "url": endpoint})
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.authToken != "" {
		request.Header.Set("Authorization", c.authToken)
	}

	startedAt := time.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return 0, nil, apiWrapError(err, goerrors.CategoryExternal,
			"apiclient: execute http request", http.StatusBadGateway,
			map[string]any{"method": method, "url": endpoint})
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, c.maxBodyBytes+1))
	if err != nil {
		return 0, nil, apiWrapError(err, goerrors.CategoryExternal,
			"apiclient: read response body", http.StatusBadGateway,
			map[string]any{"status_code": response.StatusCode})
	}
	if int64(len(responseBody)) > c.maxBodyBytes {
		return 0, nil, apiError(
			fmt.Sprintf("apiclient: response body exceeds limit of %d bytes", c.maxBodyBytes),
			goerrors.CategoryExternal, http.StatusBadGateway,
			map[string]any{"status_code": response.StatusCode, "response_limit_b": c.maxBodyBytes},
		)
	}
	c.logger.Debug("remote store request",
		"method", method, "path", path,
		"status", response.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds())
	return response.StatusCode, responseBody, nil
}

func decodeError(body []byte) *wireError {
	var envelope wireErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope.Error
}

func remoteStatusError(operation string, status int, body []byte) error {
	message := fmt.Sprintf("apiclient: %s returned unexpected status %d", operation, status)
	metadata := map[string]any{"status_code": status}
	if remote := decodeError(body); remote != nil {
		metadata["remote_error_id"] = remote.ID
		metadata["remote_error_message"] = remote.Message
	}
	category := goerrors.CategoryExternal
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		category = goerrors.CategoryAuth
	}
	return apiError(message, category, http.StatusBadGateway, metadata)
}

func apiError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(core.SyncErrorTransportFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func apiWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return apiError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(core.SyncErrorTransportFailed)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

var _ core.EventAPI = (*Client)(nil)
