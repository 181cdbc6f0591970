package recognition

import (
	"sync"
	"time"

	"sortvision-gateway/internal/domain/blob"
)

// RawResponse is the upstream reply as received, before decoding.
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Metadata is the JSON document carried in the "metadata" part.
type Metadata struct {
	Status       string            `json:"status"`
	TotalObjects int               `json:"total_objects"`
	Results      []DetectionRecord `json:"results"`
}

// DetectionRecord describes one detected object. Confidences are kept as sent.
type DetectionRecord struct {
	ID                  int       `json:"id"`
	DetectedClass       string    `json:"detected_class"`
	ClassifiedAs        string    `json:"classified_as"`
	Verdict             string    `json:"verdict"`
	Confidence          float64   `json:"confidence"`
	DetectionConfidence float64   `json:"detection_confidence"`
	BBox                []float64 `json:"bbox"`
	FileIndex           int       `json:"file_index"`
}

// Result pairs a record with the image cropped for it, if the upstream sent one.
type Result struct {
	record DetectionRecord
	image  *blob.Blob
}

func newResult(record DetectionRecord, image *blob.Blob) *Result {
	return &Result{record: record, image: image}
}

func (r *Result) Record() DetectionRecord { return r.record }

func (r *Result) ID() int { return r.record.ID }

func (r *Result) Image() *blob.Blob { return r.image }

func (r *Result) HasImage() bool { return r.image != nil }

// Handle returns the display handle; false when there is no image or it was released.
func (r *Result) Handle() (blob.Handle, bool) {
	if r.image == nil {
		return blob.Handle{}, false
	}
	return r.image.Handle()
}

// HandleURL is Handle().URL or "".
func (r *Result) HandleURL() string {
	h, ok := r.Handle()
	if !ok {
		return ""
	}
	return h.URL
}

// Download exports the image bytes with their filename.
func (r *Result) Download() (blob.Export, error) {
	if r.image == nil {
		return blob.Export{}, errNoImage(r.record.ID)
	}
	return r.image.Export()
}

// Release frees the image handle. It reports whether this call released it.
func (r *Result) Release() bool {
	if r.image == nil {
		return false
	}
	return r.image.Release()
}

// Response is a decoded recognition round. Results follow metadata order.
type Response struct {
	ScanID       string
	Status       string
	TotalObjects int
	Results      []*Result
	DecodedAt    time.Time

	releaseOnce sync.Once
	released    bool
	mu          sync.RWMutex
}

// ResultByID finds a result by its record id.
func (r *Response) ResultByID(id int) (*Result, bool) {
	for _, res := range r.Results {
		if res.record.ID == id {
			return res, true
		}
	}
	return nil, false
}

// ImageCount is the number of results carrying an image.
func (r *Response) ImageCount() int {
	n := 0
	for _, res := range r.Results {
		if res.image != nil {
			n++
		}
	}
	return n
}

// Release frees every image handle. The first call returns how many handles
// it released; later calls return 0.
func (r *Response) Release() int {
	if r == nil {
		return 0
	}
	count := 0
	r.releaseOnce.Do(func() {
		count = releaseAll(r.Results)
		r.mu.Lock()
		r.released = true
		r.mu.Unlock()
	})
	return count
}

func (r *Response) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

func releaseAll(results []*Result) int {
	count := 0
	for _, res := range results {
		if res.Release() {
			count++
		}
	}
	return count
}
