// Package transport implements the outbound JSON-RPC client used for all
// agent-to-agent calls.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"agent-league/internal/constants"
	"agent-league/internal/protocol"
)

type Client struct {
	client *fasthttp.Client
	logger zerolog.Logger
}

func NewClient(logger zerolog.Logger) *Client {
	return &Client{
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.RequestTimeout,
			WriteTimeout:        constants.RequestTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		logger: logger,
	}
}

// Send posts a JSON-RPC request to another agent and returns the result.
// The call blocks until response or deadline; the context deadline (or the
// default request timeout) is a hard cutoff, never retried.
func (c *Client) Send(ctx context.Context, url string, envelope protocol.Envelope, payload any) (*protocol.Result, error) {
	body, err := protocol.EncodeRequest(envelope, payload, uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(constants.RequestTimeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, protocol.NewError(protocol.CodeCommunicationError,
			fmt.Sprintf("HTTP error: %s", err), nil)
	}

	var response struct {
		Result *protocol.Result      `json:"result"`
		Error  *protocol.ErrorObject `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidJSONRPC,
			fmt.Sprintf("Invalid JSON response: %s", err), nil)
	}

	if response.Error != nil {
		return nil, protocol.NewError(protocol.ErrorCode(response.Error.Code),
			response.Error.Message, response.Error.Data.Details)
	}
	if response.Result == nil {
		return nil, protocol.NewError(protocol.CodeInvalidJSONRPC,
			"Response missing 'result' field", nil)
	}
	return response.Result, nil
}

// SendNoReply is the fire-and-forget variant used only for GAME_OVER
// notifications: delivery failures are logged, never surfaced.
func (c *Client) SendNoReply(ctx context.Context, url string, envelope protocol.Envelope, payload any) {
	if _, err := c.Send(ctx, url, envelope, payload); err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("fire-and-forget request failed")
	}
}
