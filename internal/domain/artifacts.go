package domain

// Stage outputs. Each stage consumes the prior stage's output and produces
// the next link in the chain; all of them serialize into stage log summaries.

// AnalysisReport is the Analyze stage output: what the legacy bundle contains.
type AnalysisReport struct {
	System     string         `json:"system,omitempty"`
	Language   string         `json:"language,omitempty"`
	Modules    []LegacyModule `json:"modules,omitempty"`
	Complexity string         `json:"complexity,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

type LegacyModule struct {
	Name  string `json:"name"`
	Kind  string `json:"kind,omitempty"`
	Lines int    `json:"lines,omitempty"`
}

// TransformPlan is the Plan stage output: ordered modernization steps.
type TransformPlan struct {
	TargetStack string     `json:"targetStack,omitempty"`
	Steps       []PlanStep `json:"steps,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

type PlanStep struct {
	Order  int    `json:"order"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// GeneratedArtifact is the Generate stage output: the reborn code.
type GeneratedArtifact struct {
	Language string         `json:"language,omitempty"`
	Files    []ArtifactFile `json:"files,omitempty"`
	Summary  string         `json:"summary,omitempty"`
}

type ArtifactFile struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// ValidationReport is the Validate stage output. Passed=false is a terminal
// pipeline outcome even though no error was raised.
type ValidationReport struct {
	Passed  bool              `json:"passed"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
	Summary string            `json:"summary,omitempty"`
}

type ValidationIssue struct {
	Severity string `json:"severity,omitempty"`
	File     string `json:"file,omitempty"`
	Message  string `json:"message"`
}

// DeployReceipt is the Deploy stage output: where the artifact landed.
type DeployReceipt struct {
	Target   string `json:"target,omitempty"`
	Location string `json:"location,omitempty"`
	Revision string `json:"revision,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// StageOutputs accumulates what earlier stages produced so later stages can
// consume it without re-reading the store.
type StageOutputs struct {
	Analysis   *AnalysisReport    `json:"analysis,omitempty"`
	Plan       *TransformPlan     `json:"plan,omitempty"`
	Artifact   *GeneratedArtifact `json:"artifact,omitempty"`
	Validation *ValidationReport  `json:"validation,omitempty"`
	Receipt    *DeployReceipt     `json:"receipt,omitempty"`
}
