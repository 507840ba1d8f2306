package domains

// RuntimeInfo describes the monitored runtime
type RuntimeInfo struct {
	GoVersion           string `json:"goVersion"`
	OS                  string `json:"os"`
	Arch                string `json:"arch"`
	AvailableProcessors int    `json:"availableProcessors"`
	MaxMemory           int64  `json:"maxMemory"`
	PID                 int    `json:"pid"`
	Hostname            string `json:"hostname,omitempty"`
}

// Identity is the agent identity sent on registration.
// It is built once at startup and never mutated afterwards.
type Identity struct {
	ContainerID   string      `json:"containerId"`
	TeamName      string      `json:"teamName"`
	AppName       string      `json:"appName"`
	PodName       string      `json:"podName"`
	ContainerName string      `json:"containerName"`
	HostIP        string      `json:"hostIp"`
	Status        string      `json:"status"`
	RuntimeInfo   RuntimeInfo `json:"runtimeInfo"`
}
