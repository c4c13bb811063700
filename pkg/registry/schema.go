// pkg/registry/schema.go
package registry

type PipelineRegistry struct {
	Version     string `json:"version"`
	LastUpdated string `json:"lastUpdated"`
	Tasks       []Task `json:"tasks"`
}

type Task struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	RequestKind          string                 `json:"requestKind"`
	Endpoint             string                 `json:"endpoint"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	Tags                 []string               `json:"tags"`
}
