package pipeline

import (
	"context"
	"fmt"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/capability"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/genai"
)

// StageRunner executes one pipeline stage. The engine owns ordering and
// persistence; runners own the work.
type StageRunner interface {
	Run(ctx context.Context, stage domain.Stage, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error)
}

// Stages binds the five pipeline stages to the capability servers and the
// generation service. Analyze, Validate and Deploy route through capability
// servers; Plan and Generate go to the generation service.
type Stages struct {
	analyzer  *capability.Analyzer
	validator *capability.Validator
	deployer  *capability.Deployer
	gen       genai.Service
}

// StageServers names the capability servers each stage routes to.
type StageServers struct {
	Analyzer  string
	Validator string
	Deployer  string
}

func DefaultStageServers() StageServers {
	return StageServers{
		Analyzer:  "analyzer",
		Validator: "validator",
		Deployer:  "deployer",
	}
}

func NewStages(caller capability.Caller, gen genai.Service, servers StageServers) *Stages {
	if servers.Analyzer == "" {
		servers.Analyzer = DefaultStageServers().Analyzer
	}
	if servers.Validator == "" {
		servers.Validator = DefaultStageServers().Validator
	}
	if servers.Deployer == "" {
		servers.Deployer = DefaultStageServers().Deployer
	}
	return &Stages{
		analyzer:  capability.NewAnalyzer(caller, servers.Analyzer),
		validator: capability.NewValidator(caller, servers.Validator),
		deployer:  capability.NewDeployer(caller, servers.Deployer),
		gen:       gen,
	}
}

func (s *Stages) Run(ctx context.Context, stage domain.Stage, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error) {
	switch stage {
	case domain.StageAnalyze:
		return s.analyze(ctx, input, outputs)
	case domain.StagePlan:
		return s.plan(ctx, input, outputs)
	case domain.StageGenerate:
		return s.generate(ctx, input, outputs)
	case domain.StageValidate:
		return s.validate(ctx, outputs)
	case domain.StageDeploy:
		return s.deploy(ctx, input, outputs)
	default:
		return "", domain.E(domain.CodeInvalidArgument, "pipeline.stage", fmt.Sprintf("unknown stage %q", stage), nil)
	}
}

func (s *Stages) analyze(ctx context.Context, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error) {
	report, err := s.analyzer.Analyze(ctx, input)
	if err != nil {
		return "", err
	}
	outputs.Analysis = report
	return fmt.Sprintf("%d modules, complexity %s", len(report.Modules), orUnknown(report.Complexity)), nil
}

func (s *Stages) plan(ctx context.Context, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error) {
	if outputs.Analysis == nil {
		return "", domain.E(domain.CodeInternal, "pipeline.plan", "analysis output missing", nil)
	}
	plan, err := s.gen.Plan(ctx, input, outputs.Analysis)
	if err != nil {
		return "", err
	}
	outputs.Plan = plan
	return fmt.Sprintf("%d steps targeting %s", len(plan.Steps), orUnknown(plan.TargetStack)), nil
}

func (s *Stages) generate(ctx context.Context, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error) {
	if outputs.Plan == nil {
		return "", domain.E(domain.CodeInternal, "pipeline.generate", "plan output missing", nil)
	}
	artifact, err := s.gen.Generate(ctx, input, outputs.Plan)
	if err != nil {
		return "", err
	}
	outputs.Artifact = artifact
	return fmt.Sprintf("%d files in %s", len(artifact.Files), orUnknown(artifact.Language)), nil
}

func (s *Stages) validate(ctx context.Context, outputs *domain.StageOutputs) (string, error) {
	if outputs.Artifact == nil {
		return "", domain.E(domain.CodeInternal, "pipeline.validate", "generated artifact missing", nil)
	}
	report, err := s.validator.Validate(ctx, outputs.Artifact)
	if err != nil {
		return "", err
	}
	outputs.Validation = report
	// A report that did not pass ends the job exactly as a stage error
	// would. Deploy must never see an invalid artifact.
	if !report.Passed {
		return "", domain.E(domain.CodeValidationFailed, "pipeline.validate", validationFailureMessage(report), nil)
	}
	return fmt.Sprintf("passed with %d issues", len(report.Issues)), nil
}

func (s *Stages) deploy(ctx context.Context, input domain.PipelineInput, outputs *domain.StageOutputs) (string, error) {
	if outputs.Validation == nil || !outputs.Validation.Passed {
		return "", domain.E(domain.CodeInternal, "pipeline.deploy", "validation did not pass", nil)
	}
	receipt, err := s.deployer.Deploy(ctx, outputs.Artifact, input.TargetStack)
	if err != nil {
		return "", err
	}
	outputs.Receipt = receipt
	return fmt.Sprintf("deployed to %s", orUnknown(receipt.Location)), nil
}

func validationFailureMessage(report *domain.ValidationReport) string {
	if len(report.Issues) == 0 {
		if report.Summary != "" {
			return fmt.Sprintf("validation failed: %s", report.Summary)
		}
		return "validation failed"
	}
	return fmt.Sprintf("validation failed with %d issues, first: %s", len(report.Issues), report.Issues[0].Message)
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
