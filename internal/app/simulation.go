package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/domain"
	"github.com/vigneshbarani24/kiro-aws-SAP-Resurrector-sub000/internal/infra/transport"
)

// Simulation providers stand in for real capability servers in one-shot
// runs. They behave like a small but honest toolchain: the analyzer scans
// the legacy source for module markers, the validator inspects the generated
// files, the deployer stamps a content-addressed receipt.

func simulationServers() []domain.ServerConfig {
	names := []string{"analyzer", "validator", "deployer"}
	configs := make([]domain.ServerConfig, 0, len(names))
	for _, name := range names {
		configs = append(configs, domain.ServerConfig{
			Name: name,
			Cmd:  []string{"builtin:" + name},
		})
	}
	return configs
}

func simulationTransport() *transport.LoopbackTransport {
	lt := transport.NewLoopbackTransport()
	lt.Register("analyzer", "analyze", analyzeSimulated)
	lt.Register("validator", "validate", validateSimulated)
	lt.Register("deployer", "deploy", deploySimulated)
	return lt
}

var moduleMarkers = map[string]string{
	"REPORT":   "report",
	"FUNCTION": "function",
	"FORM":     "form",
	"MODULE":   "module",
	"CLASS":    "class",
}

func analyzeSimulated(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Bundle string `json:"bundle"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	return json.Marshal(analyzeSource(req.Bundle, req.Source))
}

func analyzeSource(bundle, source string) domain.AnalysisReport {
	report := domain.AnalysisReport{System: "SAP ECC", Language: "ABAP"}

	lines := strings.Split(source, "\n")
	last := -1
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		fields := strings.Fields(trimmed)
		if kind, isMarker := moduleMarkers[strings.ToUpper(fields[0])]; isMarker && len(fields) > 1 {
			name := strings.TrimRight(fields[1], ".,")
			report.Modules = append(report.Modules, domain.LegacyModule{Name: name, Kind: kind})
			last = len(report.Modules) - 1
		}
		if last >= 0 {
			report.Modules[last].Lines++
		}
	}

	// Sources without recognizable markers still analyze as one opaque unit.
	if len(report.Modules) == 0 {
		report.Modules = []domain.LegacyModule{{Name: bundle, Kind: "report", Lines: len(lines)}}
	}

	report.Complexity = complexityOf(len(lines))
	report.Summary = fmt.Sprintf("%d modules in %d lines", len(report.Modules), len(lines))
	return report
}

func complexityOf(lines int) string {
	switch {
	case lines < 50:
		return "low"
	case lines < 500:
		return "medium"
	default:
		return "high"
	}
}

func validateSimulated(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Artifact *domain.GeneratedArtifact `json:"artifact"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}
	return json.Marshal(validateArtifact(req.Artifact))
}

func validateArtifact(artifact *domain.GeneratedArtifact) domain.ValidationReport {
	var issues []domain.ValidationIssue
	files := 0
	if artifact != nil {
		files = len(artifact.Files)
	}
	if files == 0 {
		issues = append(issues, domain.ValidationIssue{
			Severity: "error",
			Message:  "artifact contains no files",
		})
	} else {
		for _, file := range artifact.Files {
			switch {
			case strings.TrimSpace(file.Content) == "":
				issues = append(issues, domain.ValidationIssue{
					Severity: "error",
					File:     file.Path,
					Message:  "file is empty",
				})
			case strings.HasSuffix(file.Path, ".go") && !strings.Contains(file.Content, "package "):
				issues = append(issues, domain.ValidationIssue{
					Severity: "warning",
					File:     file.Path,
					Message:  "missing package clause",
				})
			}
		}
	}

	report := domain.ValidationReport{Passed: true, Issues: issues}
	for _, issue := range issues {
		if issue.Severity == "error" {
			report.Passed = false
			break
		}
	}
	if report.Passed {
		report.Summary = fmt.Sprintf("%d files checked", files)
	} else {
		report.Summary = fmt.Sprintf("%d issues found", len(issues))
	}
	return report
}

func deploySimulated(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var req struct {
		Artifact *domain.GeneratedArtifact `json:"artifact"`
		Target   string                    `json:"target"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, err
	}

	target := req.Target
	if target == "" {
		target = "go"
	}
	files := 0
	sum := sha256.New()
	if req.Artifact != nil {
		files = len(req.Artifact.Files)
		for _, file := range req.Artifact.Files {
			sum.Write([]byte(file.Path))
			sum.Write([]byte(file.Content))
		}
	}
	revision := hex.EncodeToString(sum.Sum(nil))[:12]

	return json.Marshal(domain.DeployReceipt{
		Target:   target,
		Location: fmt.Sprintf("s3://resurrector-artifacts/%s.tar.gz", revision),
		Revision: revision,
		Summary:  fmt.Sprintf("%d files deployed to %s", files, target),
	})
}
