package step

// PayloadKind tags the variant carried by a Payload.
type PayloadKind string

const (
	// PayloadCommand is raw external-command output.
	PayloadCommand PayloadKind = "command"

	// PayloadSync reports repository/file synchronization.
	PayloadSync PayloadKind = "sync"

	// PayloadAnalysis reports code analysis findings.
	PayloadAnalysis PayloadKind = "analysis"

	// PayloadTest reports test-runner counts.
	PayloadTest PayloadKind = "test"

	// PayloadDeploy reports a deployment.
	PayloadDeploy PayloadKind = "deploy"

	// PayloadComponent reports component configuration/sync.
	PayloadComponent PayloadKind = "component"
)

// Payload is the bounded, tagged-union output of a step. Exactly the member
// matching Kind is set; the rest are nil.
type Payload struct {
	Kind      PayloadKind    `json:"kind"`
	Command   *CommandData   `json:"command,omitempty"`
	Sync      *SyncData      `json:"sync,omitempty"`
	Analysis  *AnalysisData  `json:"analysis,omitempty"`
	Test      *TestData      `json:"test,omitempty"`
	Deploy    *DeployData    `json:"deploy,omitempty"`
	Component *ComponentData `json:"component,omitempty"`
}

// CommandData is the output of an external command invocation.
type CommandData struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// SyncData describes a synchronization step's effect.
type SyncData struct {
	FilesChanged int    `json:"files_changed"`
	Revision     string `json:"revision,omitempty"`
}

// AnalysisData describes analyzer findings.
type AnalysisData struct {
	FilesScanned int      `json:"files_scanned"`
	Issues       int      `json:"issues"`
	Files        []string `json:"files,omitempty"`
}

// TestData describes test-runner counts.
type TestData struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DeployData describes a deployment result.
type DeployData struct {
	Environment string `json:"environment"`
	URL         string `json:"url,omitempty"`
}

// ComponentData describes component configuration or sync.
type ComponentData struct {
	Components     []string `json:"components,omitempty"`
	DatabaseSynced bool     `json:"database_synced,omitempty"`
}

// NewCommandPayload builds a command-kind payload.
func NewCommandPayload(exitCode int, output string) *Payload {
	return &Payload{Kind: PayloadCommand, Command: &CommandData{ExitCode: exitCode, Output: output}}
}

// NewTestPayload builds a test-kind payload.
func NewTestPayload(passed, failed, skipped int) *Payload {
	return &Payload{Kind: PayloadTest, Test: &TestData{Passed: passed, Failed: failed, Skipped: skipped}}
}

// NewDeployPayload builds a deploy-kind payload.
func NewDeployPayload(environment, url string) *Payload {
	return &Payload{Kind: PayloadDeploy, Deploy: &DeployData{Environment: environment, URL: url}}
}
