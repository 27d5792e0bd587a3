package dto

// RejectRequest captures the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// QueryRequest captures the query raised to the applicant.
type QueryRequest struct {
	Message string `json:"message" validate:"required"`
}

// BulkRejectRequest rejects many records with one reason.
type BulkRejectRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Reason string   `json:"reason" validate:"required"`
}

// MarksRequest carries a raw mark: a number, "Ab"/"Absent", or blank to clear.
type MarksRequest struct {
	Marks *string `json:"marks" validate:"required"`
}

// PublishRequest publishes exactly the listed records for a faculty.
type PublishRequest struct {
	Faculty string   `json:"faculty" validate:"required"`
	IDs     []string `json:"ids" validate:"required,min=1,dive,required"`
}

// ImportResponse summarises a tabular import.
type ImportResponse struct {
	Rows         int              `json:"rows"`
	SuccessCount int              `json:"successCount"`
	ErrorCount   int              `json:"errorCount"`
	Errors       []ImportRowError `json:"errors,omitempty"`
}

// ImportRowError describes one rejected row; Row is 1-based and excludes the header.
type ImportRowError struct {
	Row     int    `json:"row"`
	Key     string `json:"key,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
