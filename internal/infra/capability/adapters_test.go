package capability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
)

type fakeCaller struct {
	lastServer string
	lastMethod string
	lastParams any
	result     domain.CallResult
}

func (f *fakeCaller) Call(ctx context.Context, server, method string, params any) domain.CallResult {
	f.lastServer = server
	f.lastMethod = method
	f.lastParams = params
	return f.result
}

func successResult(payload string) domain.CallResult {
	return domain.CallResult{
		Success:   true,
		Data:      json.RawMessage(payload),
		Timestamp: time.Now(),
	}
}

func TestAnalyzerDecodesReport(t *testing.T) {
	caller := &fakeCaller{result: successResult(`{
		"system": "ECC6",
		"language": "ABAP",
		"modules": [{"name": "Z_ORDERS", "kind": "report", "lines": 1200}],
		"complexity": "high",
		"summary": "1 report, heavy joins"
	}`)}
	analyzer := NewAnalyzer(caller, "abap-analyzer")

	report, err := analyzer.Analyze(context.Background(), domain.PipelineInput{
		BundleName:   "orders",
		LegacySource: "REPORT Z_ORDERS.",
	})
	require.NoError(t, err)
	require.Equal(t, "abap-analyzer", caller.lastServer)
	require.Equal(t, "analyze", caller.lastMethod)
	require.Equal(t, "ECC6", report.System)
	require.Len(t, report.Modules, 1)
	require.Equal(t, "Z_ORDERS", report.Modules[0].Name)
}

func TestAnalyzerPropagatesCallFailure(t *testing.T) {
	caller := &fakeCaller{result: domain.CallResult{
		Err: domain.E(domain.CodeTimeout, "capability.call", "call timed out", nil),
	}}
	analyzer := NewAnalyzer(caller, "abap-analyzer")

	_, err := analyzer.Analyze(context.Background(), domain.PipelineInput{BundleName: "orders"})
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.CodeTimeout, domainErr.Code)
}

func TestValidatorDecodesReport(t *testing.T) {
	caller := &fakeCaller{result: successResult(`{
		"passed": false,
		"issues": [{"severity": "error", "file": "orders.go", "message": "undefined symbol"}],
		"summary": "1 error"
	}`)}
	validator := NewValidator(caller, "validator")

	report, err := validator.Validate(context.Background(), &domain.GeneratedArtifact{Language: "go"})
	require.NoError(t, err)
	require.Equal(t, "validate", caller.lastMethod)
	require.False(t, report.Passed)
	require.Len(t, report.Issues, 1)
}

func TestDeployerDecodesReceipt(t *testing.T) {
	caller := &fakeCaller{result: successResult(`{
		"target": "btp",
		"location": "https://deploy.example/orders",
		"revision": "r42"
	}`)}
	deployer := NewDeployer(caller, "deployer")

	receipt, err := deployer.Deploy(context.Background(), &domain.GeneratedArtifact{}, "btp")
	require.NoError(t, err)
	require.Equal(t, "deploy", caller.lastMethod)
	require.Equal(t, "btp", receipt.Target)
	require.Equal(t, "r42", receipt.Revision)
}

func TestDecodeResultRejectsGarbage(t *testing.T) {
	caller := &fakeCaller{result: successResult(`not json`)}
	deployer := NewDeployer(caller, "deployer")

	_, err := deployer.Deploy(context.Background(), &domain.GeneratedArtifact{}, "btp")
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, domain.CodeInternal, domainErr.Code)
}
