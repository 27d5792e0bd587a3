package models

// BulkItemResult is the outcome of one record inside a bulk operation.
type BulkItemResult struct {
	ID      string   `json:"id"`
	Success bool     `json:"success"`
	Code    string   `json:"code,omitempty"`
	Error   string   `json:"error,omitempty"`
	Record  *Scholar `json:"record,omitempty"`
}

// BulkResult aggregates per-record outcomes. Partial failure is a normal outcome.
type BulkResult struct {
	SuccessCount int              `json:"successCount"`
	ErrorCount   int              `json:"errorCount"`
	Items        []BulkItemResult `json:"items"`
}

// Add tallies an item into the result.
func (r *BulkResult) Add(item BulkItemResult) {
	if item.Success {
		r.SuccessCount++
	} else {
		r.ErrorCount++
	}
	r.Items = append(r.Items, item)
}
