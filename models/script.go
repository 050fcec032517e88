package models

// ScriptUpdate is the body for replacing the processing script
type ScriptUpdate struct {
	Source string `json:"source"`
}

// ScriptResponse describes the stored processing script
type ScriptResponse struct {
	Key    string `json:"key"`
	Source string `json:"source,omitempty"`
	Status string `json:"status,omitempty"`
}
