package recognition

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/multipart"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/observability"
	"sortvision-gateway/internal/utils"
)

const metadataPartName = "metadata"

// Decoder turns an upstream multipart reply into a Response whose images are
// registered in a blob.Registry. It holds no per-call state.
type Decoder struct {
	correlator Correlator
	logger     *utils.Logger
}

type DecoderOption func(*Decoder)

func WithDecoderLogger(logger *utils.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithDefaultContentType sets the content type of file parts that omit one.
func WithDefaultContentType(ct string) DecoderOption {
	return func(d *Decoder) {
		d.correlator.DefaultContentType = ct
	}
}

func NewDecoder(registry blob.Registry, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		correlator: Correlator{Registry: registry},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode validates the status and content type, splits the body, parses the
// metadata part and attaches images. Any failure returns a typed error and
// leaves no handle registered.
func (d *Decoder) Decode(ctx context.Context, raw RawResponse) (resp *Response, err error) {
	const op = "recognition.decode"

	ctx, end := observability.StartSpan(ctx, "recognition", "decode")
	defer func() { end(err) }()

	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return nil, errors.Newf(errors.KindTransport, op, "upstream returned status %d", raw.StatusCode)
	}

	boundary, err := multipart.ParseContentType(raw.ContentType)
	if err != nil {
		return nil, err
	}

	parts, err := multipart.Assemble(raw.Body, boundary)
	if err != nil {
		d.logger.WarnTag("DECODE", "malformed body (%d bytes): %v", len(raw.Body), err)
		return nil, err
	}

	metaPart, err := d.metadataPart(parts)
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err := sonic.Unmarshal(metaPart.Data, &meta); err != nil {
		return nil, errors.Wrap(errors.KindFormat, op, "invalid metadata json", err)
	}

	results, err := d.correlator.Correlate(meta, parts)
	if err != nil {
		return nil, err
	}

	resp = &Response{
		ScanID:       uuid.NewString(),
		Status:       meta.Status,
		TotalObjects: meta.TotalObjects,
		Results:      results,
		DecodedAt:    time.Now(),
	}

	images := resp.ImageCount()
	observability.RecordMetric(ctx, "decode.parts", float64(len(parts)), nil)
	observability.RecordMetric(ctx, "decode.results", float64(len(results)), nil)
	observability.RecordMetric(ctx, "decode.images", float64(images), nil)
	d.logger.DebugTag("DECODE", "scan %s: status=%s parts=%d results=%d images=%d",
		resp.ScanID, resp.Status, len(parts), len(results), images)
	return resp, nil
}

// metadataPart returns the first part named "metadata". Later ones are ignored.
func (d *Decoder) metadataPart(parts []multipart.Part) (multipart.Part, error) {
	var (
		found multipart.Part
		ok    bool
	)
	for i, p := range parts {
		switch {
		case p.Name == nil:
			d.logger.DebugTag("DECODE", "part %d has no name, skipped", i)
		case *p.Name != metadataPartName:
		case ok:
			d.logger.WarnTag("DECODE", "extra metadata part %d ignored", i)
		default:
			found, ok = p, true
		}
	}
	if !ok {
		return multipart.Part{}, errors.New(errors.KindMetadata, "recognition.decode", "no metadata part in response")
	}
	return found, nil
}
