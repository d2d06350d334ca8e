package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

const plannerSystemPrompt = `You are a modernization planner for legacy enterprise code.
Given an analysis of a legacy bundle, produce an ordered porting plan.
Return only a JSON object of the form
{"targetStack": string, "steps": [{"order": number, "title": string, "detail": string}], "summary": string}.
Do not include any other text.`

const generatorSystemPrompt = `You are a code generator that rewrites legacy enterprise modules on a modern stack.
Given a porting plan, produce the target source files.
Return only a JSON object of the form
{"language": string, "files": [{"path": string, "content": string}], "summary": string}.
Do not include any other text.`

// chatModel is the slice of the eino model surface this service uses.
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// EinoService plans and generates through an LLM. Transient model failures
// and malformed responses are retried under the shared policy.
type EinoService struct {
	config Config
	model  chatModel
	policy domain.RetryPolicy
	logger *zap.Logger
}

type EinoServiceOptions struct {
	Logger *zap.Logger
	Policy domain.RetryPolicy
}

func NewEinoService(ctx context.Context, config Config, opts EinoServiceOptions) (*EinoService, error) {
	chat, err := initializeModel(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("initialize model: %w", err)
	}
	return newEinoService(config, chat, opts), nil
}

func newEinoService(config Config, chat chatModel, opts EinoServiceOptions) *EinoService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = domain.DefaultRetryPolicy()
	}
	return &EinoService{
		config: config,
		model:  chat,
		policy: policy,
		logger: logger.Named("genai"),
	}
}

// initializeModel creates the chat model based on configuration.
func initializeModel(ctx context.Context, config Config) (model.ToolCallingChatModel, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		envVar := strings.TrimSpace(config.APIKeyEnvVar)
		if envVar == "" {
			return nil, fmt.Errorf("API key is required: set genai.apiKey or genai.apiKeyEnvVar")
		}
		apiKey = os.Getenv(envVar)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found in env var %s", envVar)
		}
	}

	switch config.Provider {
	case "openai", "":
		cfg := &openai.ChatModelConfig{
			Model:  config.Model,
			APIKey: apiKey,
		}
		if config.BaseURL != "" {
			cfg.BaseURL = config.BaseURL
		}
		return openai.NewChatModel(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

func (s *EinoService) Plan(ctx context.Context, input domain.PipelineInput, analysis *domain.AnalysisReport) (*domain.TransformPlan, error) {
	prompt := buildPlanPrompt(input, analysis)
	var plan domain.TransformPlan
	err := s.complete(ctx, "genai.plan", plannerSystemPrompt, prompt, func(content string) error {
		parsed, err := parseJSONBlock[domain.TransformPlan](content)
		if err != nil {
			return err
		}
		if len(parsed.Steps) == 0 {
			return fmt.Errorf("plan has no steps")
		}
		plan = *parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if plan.TargetStack == "" {
		plan.TargetStack = input.TargetStack
	}
	return &plan, nil
}

func (s *EinoService) Generate(ctx context.Context, input domain.PipelineInput, plan *domain.TransformPlan) (*domain.GeneratedArtifact, error) {
	prompt := buildGeneratePrompt(input, plan)
	var artifact domain.GeneratedArtifact
	err := s.complete(ctx, "genai.generate", generatorSystemPrompt, prompt, func(content string) error {
		parsed, err := parseJSONBlock[domain.GeneratedArtifact](content)
		if err != nil {
			return err
		}
		if len(parsed.Files) == 0 {
			return fmt.Errorf("artifact has no files")
		}
		artifact = *parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &artifact, nil
}

// complete runs one prompt through the model, retrying model failures and
// unparseable responses until the policy budget runs out.
func (s *EinoService) complete(ctx context.Context, op, system, prompt string, accept func(string) error) error {
	messages := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	}

	attempts := s.policy.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return domain.E(domain.CodeCanceled, op, "generation canceled", ctx.Err())
		}

		started := time.Now()
		response, err := s.model.Generate(ctx, messages)
		if err == nil {
			s.observeUsage(op, response, time.Since(started))
			if acceptErr := accept(response.Content); acceptErr == nil {
				return nil
			} else {
				lastErr = domain.E(domain.CodeInternal, op, "model returned an unusable response", acceptErr)
			}
		} else {
			if ctx.Err() != nil {
				return domain.E(domain.CodeCanceled, op, "generation canceled", ctx.Err())
			}
			lastErr = domain.E(domain.CodeUnavailable, op, "model call failed", err)
		}

		if attempt == attempts {
			break
		}
		delay := s.policy.Backoff(attempt)
		s.logger.Warn("generation retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr),
		)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return domain.E(domain.CodeCanceled, op, "generation canceled during backoff", ctx.Err())
		}
		timer.Stop()
	}
	return lastErr
}

func (s *EinoService) observeUsage(op string, response *schema.Message, latency time.Duration) {
	if response == nil || response.ResponseMeta == nil || response.ResponseMeta.Usage == nil {
		return
	}
	tokens := response.ResponseMeta.Usage.TotalTokens
	if tokens <= 0 {
		return
	}
	s.logger.Debug("model usage",
		zap.String("op", op),
		zap.String("model", s.config.Model),
		zap.Int("totalTokens", tokens),
		zap.Duration("latency", latency),
	)
}

func buildPlanPrompt(input domain.PipelineInput, analysis *domain.AnalysisReport) string {
	var sb strings.Builder
	sb.WriteString("Legacy bundle: ")
	sb.WriteString(input.BundleName)
	sb.WriteString("\nTarget stack: ")
	if input.TargetStack != "" {
		sb.WriteString(input.TargetStack)
	} else {
		sb.WriteString("go")
	}
	if analysis != nil {
		fmt.Fprintf(&sb, "\nSource system: %s (%s), complexity %s\n", analysis.System, analysis.Language, analysis.Complexity)
		sb.WriteString("Modules:\n")
		for _, module := range analysis.Modules {
			fmt.Fprintf(&sb, "- %s (%s, %d lines)\n", module.Name, module.Kind, module.Lines)
		}
		if analysis.Summary != "" {
			sb.WriteString("Analysis summary: ")
			sb.WriteString(analysis.Summary)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nProduce the porting plan.")
	return sb.String()
}

func buildGeneratePrompt(input domain.PipelineInput, plan *domain.TransformPlan) string {
	var sb strings.Builder
	sb.WriteString("Legacy bundle: ")
	sb.WriteString(input.BundleName)
	if plan != nil {
		fmt.Fprintf(&sb, "\nTarget stack: %s\nPlan:\n", plan.TargetStack)
		for _, step := range plan.Steps {
			fmt.Fprintf(&sb, "%d. %s: %s\n", step.Order, step.Title, step.Detail)
		}
	}
	if input.LegacySource != "" {
		sb.WriteString("\nLegacy source:\n")
		sb.WriteString(input.LegacySource)
		sb.WriteString("\n")
	}
	sb.WriteString("\nGenerate the target files.")
	return sb.String()
}

// parseJSONBlock tolerates the model wrapping its JSON in a code fence.
func parseJSONBlock[T any](content string) (*T, error) {
	trimmed := strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(trimmed, "```json"); ok {
		trimmed = after
	} else if after, ok := strings.CutPrefix(trimmed, "```"); ok {
		trimmed = after
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	trimmed = strings.TrimSpace(trimmed)

	var out T
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return &out, nil
}

var _ Service = (*EinoService)(nil)
