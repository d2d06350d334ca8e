package genai

import (
	"context"
	"fmt"
	"strings"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// Config selects and authenticates the generation model.
type Config struct {
	Provider     string `json:"provider" mapstructure:"provider"`
	Model        string `json:"model" mapstructure:"model"`
	APIKey       string `json:"apiKey" mapstructure:"apiKey"`
	APIKeyEnvVar string `json:"apiKeyEnvVar" mapstructure:"apiKeyEnvVar"`
	BaseURL      string `json:"baseUrl" mapstructure:"baseUrl"`
}

// Service produces the plan and generate stage outputs. EinoService talks to
// a real model; StaticService is the deterministic stand-in for simulation
// runs and environments without credentials.
type Service interface {
	Plan(ctx context.Context, input domain.PipelineInput, analysis *domain.AnalysisReport) (*domain.TransformPlan, error)
	Generate(ctx context.Context, input domain.PipelineInput, plan *domain.TransformPlan) (*domain.GeneratedArtifact, error)
}

// StaticService derives plans and artifacts from the analysis alone, without
// a model. The output is deliberately boring but structurally complete, so
// every downstream stage has something real to chew on.
type StaticService struct{}

func NewStaticService() *StaticService {
	return &StaticService{}
}

func (s *StaticService) Plan(ctx context.Context, input domain.PipelineInput, analysis *domain.AnalysisReport) (*domain.TransformPlan, error) {
	target := input.TargetStack
	if target == "" {
		target = "go"
	}
	plan := &domain.TransformPlan{TargetStack: target}

	order := 1
	plan.Steps = append(plan.Steps, domain.PlanStep{
		Order: order,
		Title: "Scaffold target project",
		Detail: fmt.Sprintf("Create a %s project skeleton for bundle %q",
			target, input.BundleName),
	})
	for _, module := range analysisModules(analysis) {
		order++
		plan.Steps = append(plan.Steps, domain.PlanStep{
			Order:  order,
			Title:  fmt.Sprintf("Port module %s", module.Name),
			Detail: fmt.Sprintf("Translate %s (%s) to %s", module.Name, moduleKind(module), target),
		})
	}
	order++
	plan.Steps = append(plan.Steps, domain.PlanStep{
		Order:  order,
		Title:  "Wire modules together",
		Detail: "Connect the ported modules behind a single entry point",
	})
	plan.Summary = fmt.Sprintf("%d steps to rebuild %s on %s", len(plan.Steps), input.BundleName, target)
	return plan, nil
}

func (s *StaticService) Generate(ctx context.Context, input domain.PipelineInput, plan *domain.TransformPlan) (*domain.GeneratedArtifact, error) {
	target := "go"
	if plan != nil && plan.TargetStack != "" {
		target = plan.TargetStack
	}
	artifact := &domain.GeneratedArtifact{Language: target}

	var steps []domain.PlanStep
	if plan != nil {
		steps = plan.Steps
	}
	for _, step := range steps {
		name := strings.TrimPrefix(step.Title, "Port module ")
		if name == step.Title {
			continue
		}
		artifact.Files = append(artifact.Files, domain.ArtifactFile{
			Path:    fmt.Sprintf("internal/%s/%s.go", sanitizePath(input.BundleName), sanitizePath(name)),
			Content: fmt.Sprintf("package %s\n\n// %s carries the ported behavior of the legacy module.\n", sanitizePath(input.BundleName), name),
		})
	}
	artifact.Files = append(artifact.Files, domain.ArtifactFile{
		Path:    "cmd/main.go",
		Content: "package main\n\nfunc main() {}\n",
	})
	artifact.Summary = fmt.Sprintf("%d files generated for %s", len(artifact.Files), input.BundleName)
	return artifact, nil
}

func analysisModules(analysis *domain.AnalysisReport) []domain.LegacyModule {
	if analysis == nil {
		return nil
	}
	return analysis.Modules
}

func moduleKind(module domain.LegacyModule) string {
	if module.Kind == "" {
		return "module"
	}
	return module.Kind
}

func sanitizePath(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return "bundle"
	}
	return cleaned
}

var _ Service = (*StaticService)(nil)
