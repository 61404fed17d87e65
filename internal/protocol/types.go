package protocol

// Request is the single line written to the discovery tool's stdin. It
// names the framework release and the configuration whose output modules
// are wanted: either ConfigURL or the Scenario fields are set.
type Request struct {
	CmsPath          string         `json:"cmsPath"`
	ScramArch        string         `json:"scramArch"`
	FrameworkVersion string         `json:"frameworkVersion"`
	ConfigURL        string         `json:"configUrl"`
	ScenarioName     string         `json:"scenarioName"`
	ScenarioFunc     string         `json:"scenarioFunc"`
	ScenarioArgs     map[string]any `json:"scenarioArgs"`
}

// ModuleInfo describes one output module.
type ModuleInfo struct {
	DataTier   string `json:"dataTier"`
	FilterName string `json:"filterName"`
}

// Response maps output module name to its metadata.
type Response map[string]ModuleInfo
