package image

// Capture is an upload that passed validation and may be sent to the recognizer.
type Capture struct {
	Data        []byte
	Filename    string
	ContentType string
	Format      string
	Width       int
	Height      int
	// ToggleFlag is forwarded as the recognizer's toggle_flag field when set.
	ToggleFlag *bool
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

// Metrics aggregates pipeline statistics.
type Metrics struct {
	TotalProcessed    int64 `json:"total_processed"`
	FailedValidations int64 `json:"failed_validations"`
	SecurityIncidents int64 `json:"security_incidents"`
}
