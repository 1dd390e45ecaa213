package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// VideoInfo is the metadata returned by a fetch info task.
type VideoInfo struct {
	Title           string         `json:"title"`
	DurationSeconds float64        `json:"duration"`
	ViewCount       int64          `json:"view_count"`
	Uploader        string         `json:"uploader"`
	Description     string         `json:"description"`
	ThumbnailURL    string         `json:"thumbnail"`
	Formats         []FormatOption `json:"formats,omitempty"`
}

// FormatOption is one quality/container pair offered by the worker.
type FormatOption struct {
	Quality string `json:"quality"`
	Format  string `json:"format"`
}

type videoDocument struct {
	VideoInfo
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// ParseVideoInfo parses the concatenated output of a fetch info task. The
// document must be a single JSON object; fields the worker omits stay
// zero. A document with "success": false is the worker reporting an error
// and is returned as ProtocolError.
func ParseVideoInfo(output []byte) (VideoInfo, error) {
	trimmed := bytes.TrimSpace(output)
	if len(trimmed) == 0 {
		return VideoInfo{}, &ProtocolError{Kind: KindFetchInfo, Detail: "empty output"}
	}
	if trimmed[0] != '{' {
		return VideoInfo{}, &ProtocolError{Kind: KindFetchInfo, Detail: "output is not a JSON object"}
	}

	var doc videoDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return VideoInfo{}, &ProtocolError{Kind: KindFetchInfo, Detail: "output is not valid JSON", Err: err}
	}
	if doc.Success != nil && !*doc.Success {
		detail := doc.Error
		if detail == "" {
			detail = "worker reported failure"
		}
		return VideoInfo{}, &ProtocolError{Kind: KindFetchInfo, Detail: detail, Err: errors.New("worker reported failure")}
	}
	return doc.VideoInfo, nil
}
