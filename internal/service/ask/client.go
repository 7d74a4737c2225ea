package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

// Path is the backend endpoint answering questions.
const Path = "/api/user/ask"

const maxErrorBody = 256

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrBadStatus     = errors.New("backend returned a non-success status")
)

// Client talks to the retrieval backend over HTTP.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New creates a client for the backend rooted at baseURL. A non-positive
// timeout leaves deadlines to the caller's context.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		rc.SetTimeout(timeout)
	}

	return &Client{http: rc, logger: logger.Named("ask")}
}

// Ask posts question and decodes the answer with its supporting cases.
func (c *Client) Ask(ctx context.Context, question string) (*chat.AskResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	started := time.Now()
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chat.AskRequest{Question: question}).
		Post(Path)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", Path, err)
	}

	if !res.IsSuccess() {
		c.logger.Warn("backend returned error",
			zap.Int("status", res.StatusCode()),
			zap.String("body", truncate(res.String(), maxErrorBody)))
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, res.StatusCode())
	}

	body := bytes.TrimSpace(res.Body())
	out := &chat.AskResponse{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decode ask response: %w", err)
		}
	}

	c.logger.Debug("question answered",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("answerLength", len([]rune(out.Answer))),
		zap.Int("cases", len(out.Context)))
	return out, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
