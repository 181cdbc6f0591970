package scan

import (
	"time"

	"sortvision-gateway/internal/app/services"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/domain/recognition"
	"sortvision-gateway/internal/utils"
)

// ResultData is one recognised object as sent to the browser.
type ResultData struct {
	ID                  int       `json:"id"`
	DetectedClass       string    `json:"detected_class"`
	ClassifiedAs        string    `json:"classified_as"`
	Verdict             string    `json:"verdict"`
	Confidence          float64   `json:"confidence"`
	DetectionConfidence float64   `json:"detection_confidence"`
	BBox                []float64 `json:"bbox"`
	FileIndex           int       `json:"file_index"`
	ImageURL            string    `json:"image_url,omitempty"`
	DownloadURL         string    `json:"download_url,omitempty"`
	Filename            string    `json:"filename,omitempty"`
	ContentType         string    `json:"content_type,omitempty"`
}

// ScanData is the JSON form of a recognition response.
type ScanData struct {
	ScanID       string       `json:"scan_id"`
	Status       string       `json:"status"`
	TotalObjects int          `json:"total_objects"`
	Results      []ResultData `json:"results"`
	DecodedAt    time.Time    `json:"decoded_at"`
	UploadURL    string       `json:"upload_url,omitempty"`
	DurationMs   int64        `json:"duration_ms,omitempty"`
}

// FeedbackRequest labels one result of the current scan. Accepted as form or JSON.
type FeedbackRequest struct {
	ResultID *int   `form:"result_id" json:"result_id" binding:"required"`
	Label    string `form:"label" json:"label" binding:"required"`
}

type SaveData struct {
	URL string `json:"url"`
}

type ReleaseData struct {
	Released bool `json:"released"`
}

// HealthData is returned by GET /api/health.
type HealthData struct {
	Status     string            `json:"status"`
	Recognizer string            `json:"recognizer"`
	Error      string            `json:"error,omitempty"`
	Blobs      blob.Stats        `json:"blobs"`
	Clients    int               `json:"clients"`
	Capture    *image.Metrics    `json:"capture,omitempty"`
	System     utils.SystemStats `json:"system"`
}

func newScanData(resp *recognition.Response) ScanData {
	data := ScanData{
		ScanID:       resp.ScanID,
		Status:       resp.Status,
		TotalObjects: resp.TotalObjects,
		Results:      make([]ResultData, 0, len(resp.Results)),
		DecodedAt:    resp.DecodedAt,
	}
	for _, r := range resp.Results {
		rec := r.Record()
		rd := ResultData{
			ID:                  rec.ID,
			DetectedClass:       rec.DetectedClass,
			ClassifiedAs:        rec.ClassifiedAs,
			Verdict:             rec.Verdict,
			Confidence:          rec.Confidence,
			DetectionConfidence: rec.DetectionConfidence,
			BBox:                rec.BBox,
			FileIndex:           rec.FileIndex,
		}
		if url := r.HandleURL(); url != "" {
			rd.ImageURL = url
			rd.DownloadURL = url + "/download"
			rd.Filename = r.Image().Filename()
			rd.ContentType = r.Image().ContentType()
		}
		data.Results = append(data.Results, rd)
	}
	return data
}

func newOutcomeData(outcome *services.ScanOutcome) ScanData {
	data := newScanData(outcome.Response)
	data.UploadURL = outcome.UploadURL
	data.DurationMs = outcome.Duration.Milliseconds()
	return data
}
