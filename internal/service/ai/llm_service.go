package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/medrag-chat/internal/model/chat"
)

// DefaultSystemPrompt frames the model as the consultation assistant.
const DefaultSystemPrompt = `你是 Medical RAG 医疗健康咨询助手。
请用简洁、通俗的中文回答用户的健康问题：
- 先给出直接结论，再补充注意事项；
- 涉及用药、急症或需要检查确诊的情况，提醒用户及时就医并说明建议挂的科室；
- 不要编造检查结果或药品剂量。`

var ErrEmptyQuestion = errors.New("question is empty")

// Service answers questions directly with a chat model. It has no retrieval
// step, so answers never carry reference cases.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
	logger       *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) Option {
	return func(s *Service) {
		if strings.TrimSpace(p) != "" {
			s.systemPrompt = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService compiles the prompt -> model chain.
func NewService(ctx context.Context, chatModel model.BaseChatModel, opts ...Option) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	s := &Service{systemPrompt: DefaultSystemPrompt, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("ai")

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	s.chain = runnable

	return s, nil
}

// Ask runs the chain for one question.
func (s *Service) Ask(ctx context.Context, question string) (*chat.AskResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": s.systemPrompt,
		"query":  question,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}

	answer := strings.TrimSpace(response.Content)
	s.logger.Debug("generated answer", zap.Int("length", len([]rune(answer))))
	return &chat.AskResponse{Answer: answer}, nil
}
