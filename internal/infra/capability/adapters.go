package capability

import (
	"context"
	"encoding/json"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

// Caller routes one call to a named capability server. *Registry implements
// it; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, server, method string, params any) domain.CallResult
}

// Analyzer wraps the analysis server behind a typed interface.
type Analyzer struct {
	caller Caller
	server string
}

func NewAnalyzer(caller Caller, server string) *Analyzer {
	return &Analyzer{caller: caller, server: server}
}

func (a *Analyzer) Analyze(ctx context.Context, input domain.PipelineInput) (*domain.AnalysisReport, error) {
	params := map[string]any{
		"bundle":  input.BundleName,
		"source":  input.LegacySource,
		"options": input.Options,
	}
	result := a.caller.Call(ctx, a.server, "analyze", params)
	var report domain.AnalysisReport
	if err := decodeResult(result, "analyzer.analyze", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Validator wraps the validation server.
type Validator struct {
	caller Caller
	server string
}

func NewValidator(caller Caller, server string) *Validator {
	return &Validator{caller: caller, server: server}
}

func (v *Validator) Validate(ctx context.Context, artifact *domain.GeneratedArtifact) (*domain.ValidationReport, error) {
	params := map[string]any{"artifact": artifact}
	result := v.caller.Call(ctx, v.server, "validate", params)
	var report domain.ValidationReport
	if err := decodeResult(result, "validator.validate", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Deployer wraps the deployment server.
type Deployer struct {
	caller Caller
	server string
}

func NewDeployer(caller Caller, server string) *Deployer {
	return &Deployer{caller: caller, server: server}
}

func (d *Deployer) Deploy(ctx context.Context, artifact *domain.GeneratedArtifact, target string) (*domain.DeployReceipt, error) {
	params := map[string]any{
		"artifact": artifact,
		"target":   target,
	}
	result := d.caller.Call(ctx, d.server, "deploy", params)
	var receipt domain.DeployReceipt
	if err := decodeResult(result, "deployer.deploy", &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func decodeResult(result domain.CallResult, op string, out any) error {
	if !result.Success {
		if result.Err != nil {
			return result.Err
		}
		return domain.E(domain.CodeInternal, op, "call failed without error detail", nil)
	}
	if len(result.Data) == 0 {
		return domain.E(domain.CodeInternal, op, "empty result", nil)
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return domain.E(domain.CodeInternal, op, "decode result", err)
	}
	return nil
}
