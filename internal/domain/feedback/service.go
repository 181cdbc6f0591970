package feedback

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"sortvision-gateway/internal/platform/config"
	"sortvision-gateway/internal/platform/errors"
	"sortvision-gateway/internal/platform/storage"
	"sortvision-gateway/internal/utils"
)

// PublicPrefix is the URL prefix the gateway serves the uploads dir under.
const PublicPrefix = "/uploads"

const defaultFilename = "image.webp"

// Submission is an operator correction for one recognised object.
type Submission struct {
	Label    string
	Filename string
	Data     []byte
	ResultID string
	ClientID string
}

// Receipt describes what was written.
type Receipt struct {
	URL      string `json:"url"`
	Path     string `json:"-"`
	Label    string `json:"label,omitempty"`
	RecordID uint   `json:"record_id,omitempty"`
}

// Service writes raw uploads and labelled feedback images to disk.
type Service struct {
	uploadsDir string
	labels     []string
	allowed    map[string]struct{}
	db         *gorm.DB
	logger     *utils.Logger
	now        func() time.Time
}

// NewService creates the uploads directory. db may be nil, in which case
// feedback rows are not recorded.
func NewService(cfg config.FeedbackConfig, db *gorm.DB, logger *utils.Logger) (*Service, error) {
	dir := cfg.UploadsDir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "feedback.new", "create uploads dir", err)
	}
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = config.DefaultLabels
	}
	allowed := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		allowed[l] = struct{}{}
	}
	return &Service{
		uploadsDir: dir,
		labels:     append([]string(nil), labels...),
		allowed:    allowed,
		db:         db,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Labels lists the accepted labels in configured order.
func (s *Service) Labels() []string {
	return append([]string(nil), s.labels...)
}

// ValidLabel reports whether label is one of the configured classes.
func (s *Service) ValidLabel(label string) bool {
	_, ok := s.allowed[label]
	return ok
}

// Save writes a raw upload as <uploads>/<unixms>-<uuid>-<name> and returns its public URL.
func (s *Service) Save(ctx context.Context, filename string, data []byte) (string, error) {
	const op = "feedback.save"
	if len(data) == 0 {
		return "", errors.New(errors.KindDomain, op, "no file")
	}
	name := s.storedName(filename)
	if err := s.write(ctx, s.uploadsDir, name, data); err != nil {
		return "", errors.Wrap(errors.KindStorage, op, "write upload", err)
	}
	s.logger.InfoTag("FEEDBACK", "saved upload %s (%d bytes)", name, len(data))
	return PublicPrefix + "/" + url.PathEscape(name), nil
}

// Submit stores data under <uploads>/labeled/<label>/ and records the submission.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	const op = "feedback.submit"
	if len(sub.Data) == 0 {
		return nil, errors.New(errors.KindDomain, op, "no data")
	}
	if !s.ValidLabel(sub.Label) {
		return nil, errors.Newf(errors.KindDomain, op, "unknown label %q", sub.Label)
	}

	name := s.storedName(sub.Filename)
	dir := filepath.Join(s.uploadsDir, "labeled", sub.Label)
	if err := s.write(ctx, dir, name, sub.Data); err != nil {
		return nil, errors.Wrap(errors.KindStorage, op, "write feedback", err)
	}

	receipt := &Receipt{
		URL:   path.Join(PublicPrefix, "labeled", url.PathEscape(sub.Label), url.PathEscape(name)),
		Path:  filepath.Join(dir, name),
		Label: sub.Label,
	}

	if s.db != nil {
		row := &storage.FeedbackRecord{
			Label:     sub.Label,
			Path:      receipt.Path,
			ResultID:  sub.ResultID,
			ClientID:  sub.ClientID,
			Size:      int64(len(sub.Data)),
			CreatedAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			// the file is already on disk; keep it and report the failure
			return receipt, errors.Wrap(errors.KindStorage, op, "record feedback", err)
		}
		receipt.RecordID = row.ID
	}

	s.logger.InfoTag("FEEDBACK", "label %q for result %s from %s", sub.Label, sub.ResultID, sub.ClientID)
	return receipt, nil
}

// CountByLabel returns how many recorded submissions each label has.
func (s *Service) CountByLabel(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	if s.db == nil {
		return out, nil
	}
	var rows []struct {
		Label string
		Total int64
	}
	err := s.db.WithContext(ctx).Model(&storage.FeedbackRecord{}).
		Select("label, count(*) as total").
		Group("label").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "feedback.count", "count feedback", err)
	}
	for _, r := range rows {
		out[r.Label] = r.Total
	}
	return out, nil
}

func (s *Service) storedName(filename string) string {
	base := sanitizeFilename(filename)
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString(), base)
}

func (s *Service) write(ctx context.Context, dir, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), data, 0o644)
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return defaultFilename
	}
	return name
}
