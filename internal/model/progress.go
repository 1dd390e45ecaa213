package model

// ProgressEvent is one progress report of a download. A nil field was not
// present in the worker's payload, so "unknown percent" stays distinct
// from 0%.
type ProgressEvent struct {
	Status     *string  `json:"status,omitempty"`
	Percent    *float64 `json:"percent,omitempty"`
	Speed      *string  `json:"speed,omitempty"`
	ETASeconds *float64 `json:"eta,omitempty"`
}

// ProgressFromFields converts a structured worker line into a progress
// event. Only payloads with a status or a percent key qualify.
//
// The worker reports percent as a percentage in 0..100. Out of range
// values are clamped.
func ProgressFromFields(fields map[string]any) (ProgressEvent, bool) {
	_, hasStatus := fields["status"]
	_, hasPercent := fields["percent"]
	if !hasStatus && !hasPercent {
		return ProgressEvent{}, false
	}

	var ev ProgressEvent
	if s, ok := fields["status"].(string); ok {
		ev.Status = &s
	}
	if p, ok := fields["percent"].(float64); ok {
		p = min(max(p, 0), 100)
		ev.Percent = &p
	}
	if s, ok := fields["speed"].(string); ok {
		ev.Speed = &s
	}
	if e, ok := fields["eta"].(float64); ok {
		ev.ETASeconds = &e
	}
	return ev, true
}

// WorkerResult is the summary line a worker prints before exiting, e.g.
// {"success": false, "error": "URL required"}.
type WorkerResult struct {
	Success bool
	Message string
}

// ResultFromFields recognises a summary line by its boolean success key.
func ResultFromFields(fields map[string]any) (WorkerResult, bool) {
	success, ok := fields["success"].(bool)
	if !ok {
		return WorkerResult{}, false
	}
	r := WorkerResult{Success: success}
	for _, key := range []string{"error", "message"} {
		if s, ok := fields[key].(string); ok && s != "" {
			r.Message = s
			break
		}
	}
	return r, true
}
