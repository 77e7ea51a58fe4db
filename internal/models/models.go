package models

type TargetRequest struct {
	Kind        string `json:"kind"` // directory | file
	Destination string `json:"destination"`
	Source      string `json:"source,omitempty"`
}

type TaskResponse struct {
	TaskID      string `json:"task_id"`
	Destination string `json:"destination,omitempty"`
	Status      string `json:"status"` // success | failed | rejected
	Message     string `json:"message,omitempty"`
}

type PoolStatus struct {
	Workers int `json:"workers"` // configured
	Live    int `json:"live"`    // still running
	Pending int `json:"pending"`
}
