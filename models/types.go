package models

// DownloadItem is one URL of the list together with the file it is mirrored to.
type DownloadItem struct {
	URL       string
	LocalPath string
}

// DownloadRecord is the manifest entry written for every attempted URL.
type DownloadRecord struct {
	Filepath     string `json:"filepath"`
	URL          string `json:"url"`
	Downloadtime string `json:"downloadtime"`
	Status       int    `json:"status,omitempty"`
	Bytes        int64  `json:"bytes"`
	Error        string `json:"error,omitempty"`
}

// RunInfo describes one invocation of the tool.
type RunInfo struct {
	Software     string `json:"software"`
	RunSessionID string `json:"run_session_id"`
	Mode         string `json:"mode"`
	URLList      string `json:"url_list"`
	OutputDir    string `json:"output_dir"`
	RemotePrefix string `json:"remote_prefix"`
}
