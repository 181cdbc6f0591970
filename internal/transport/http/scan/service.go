package scan

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"sortvision-gateway/internal/app/services"
	"sortvision-gateway/internal/domain/blob"
	"sortvision-gateway/internal/domain/image"
	"sortvision-gateway/internal/platform/errors"
	httptransport "sortvision-gateway/internal/transport/http"
	"sortvision-gateway/internal/utils"
)

const (
	defaultMaxUpload = 16 << 20
	healthTimeout    = 3 * time.Second
)

// CaptureStats exposes validation counters for the health endpoint.
type CaptureStats interface {
	Metrics() image.Metrics
}

// Options wires the scan HTTP service.
type Options struct {
	Scans     *services.ScanService
	Registry  blob.Registry
	Capture   CaptureStats
	Logger    *utils.Logger
	MaxUpload int64
}

// Service exposes scanning, blob serving and feedback over HTTP.
type Service struct {
	scans     *services.ScanService
	registry  blob.Registry
	capture   CaptureStats
	logger    *utils.Logger
	maxUpload int64
}

func NewService(opts Options) (*Service, error) {
	if opts.Scans == nil {
		return nil, errors.New(errors.KindConfig, "scan.http.new", "scan service is required")
	}
	if opts.Registry == nil {
		return nil, errors.New(errors.KindConfig, "scan.http.new", "blob registry is required")
	}
	maxUpload := opts.MaxUpload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &Service{
		scans:     opts.Scans,
		registry:  opts.Registry,
		capture:   opts.Capture,
		logger:    logger,
		maxUpload: maxUpload,
	}, nil
}

// Register mounts the routes. Blob and health routes go on the public
// group since browsers fetch image URLs without credentials.
func (s *Service) Register(ctx context.Context, router *httptransport.Router) error {
	public := router.API
	secured := router.Secured

	secured.POST("/scan", s.handleScan)
	secured.GET("/scan/current", s.handleCurrent)
	secured.DELETE("/scan/current", s.handleRelease)
	secured.GET("/scan/history", s.handleHistory)
	secured.POST("/feedback", s.handleFeedback)
	secured.POST("/save", s.handleSave)

	public.GET("/blobs/:id", s.handleBlob)
	public.GET("/blobs/:id/download", s.handleDownload)
	public.GET("/health", s.handleHealth)

	s.logger.InfoTag("HTTP", "scan routes registered")
	return nil
}

// handleScan
// @Summary Recognise waste objects in a capture
// @Tags Scan
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "capture image"
// @Param toggle_flag formData bool false "forwarded to the recognizer"
// @Success 200 {object} ScanData
// @Failure 400 {object} httptransport.APIResponse
// @Failure 409 {object} httptransport.APIResponse
// @Failure 502 {object} httptransport.APIResponse
// @Router /scan [post]
func (s *Service) handleScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "no file", nil)
		return
	}

	var toggle *bool
	if raw, ok := c.GetPostForm("toggle_flag"); ok && raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httptransport.RespondError(c, http.StatusBadRequest, "invalid toggle_flag", nil)
			return
		}
		toggle = &v
	}

	file, err := fileHeader.Open()
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "cannot read file", nil)
		return
	}
	defer file.Close()

	clientID := httptransport.ClientID(c)
	outcome, err := s.scans.Scan(c.Request.Context(), clientID, image.Input{
		Reader:      file,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		ToggleFlag:  toggle,
	})
	if err != nil {
		s.logger.WarnTag("HTTP", "scan for %s failed: %v", clientID, err)
		httptransport.RespondFailure(c, err)
		return
	}

	httptransport.RespondSuccess(c, http.StatusOK, newOutcomeData(outcome), "")
}

func (s *Service) handleCurrent(c *gin.Context) {
	resp, ok := s.scans.Current(httptransport.ClientID(c))
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "no current scan", nil)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, newScanData(resp), "")
}

func (s *Service) handleRelease(c *gin.Context) {
	released := s.scans.Release(httptransport.ClientID(c))
	httptransport.RespondSuccess(c, http.StatusOK, ReleaseData{Released: released}, "")
}

func (s *Service) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httptransport.RespondError(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	records, err := s.scans.History(c.Request.Context(), httptransport.ClientID(c), limit)
	if err != nil {
		httptransport.RespondFailure(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, records, "")
}

// handleFeedback
// @Summary Label one result of the current scan
// @Tags Feedback
// @Accept multipart/form-data,json
// @Produce json
// @Param result_id formData int true "result id"
// @Param label formData string true "waste class"
// @Success 200 {object} feedback.Receipt
// @Router /feedback [post]
func (s *Service) handleFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBind(&req); err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "result_id and label are required", nil)
		return
	}

	receipt, err := s.scans.Feedback(c.Request.Context(), httptransport.ClientID(c), *req.ResultID, req.Label)
	if err != nil {
		httptransport.RespondFailure(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, receipt, "")
}

func (s *Service) handleSave(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "no file", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "cannot read file", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		httptransport.RespondError(c, http.StatusBadRequest, "cannot read file", nil)
		return
	}
	if int64(len(data)) > s.maxUpload {
		httptransport.RespondError(c, http.StatusRequestEntityTooLarge, "file too large", nil)
		return
	}

	url, err := s.scans.SaveUpload(c.Request.Context(), fileHeader.Filename, data)
	if err != nil {
		httptransport.RespondFailure(c, err)
		return
	}
	httptransport.RespondSuccess(c, http.StatusOK, SaveData{URL: url}, "")
}

func (s *Service) handleBlob(c *gin.Context) {
	s.serveBlob(c, false)
}

func (s *Service) handleDownload(c *gin.Context) {
	s.serveBlob(c, true)
}

func (s *Service) serveBlob(c *gin.Context, attachment bool) {
	entry, ok := s.registry.Lookup(c.Param("id"))
	if !ok {
		httptransport.RespondError(c, http.StatusNotFound, "blob not found", nil)
		return
	}

	if attachment {
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": entry.Filename})
		if disposition == "" {
			disposition = "attachment"
		}
		c.Header("Content-Disposition", disposition)
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, entry.ContentType, entry.Data)
}

func (s *Service) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	data := HealthData{
		Status:     "ok",
		Recognizer: "up",
		Blobs:      s.registry.Stats(),
		Clients:    len(s.scans.Clients()),
		System:     utils.CollectSystemStats(ctx),
	}
	if s.capture != nil {
		m := s.capture.Metrics()
		data.Capture = &m
	}

	status := http.StatusOK
	if err := s.scans.RecognizerHealth(ctx); err != nil {
		data.Status = "degraded"
		data.Recognizer = "down"
		data.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	if status != http.StatusOK {
		httptransport.RespondError(c, status, fmt.Sprintf("recognizer %s", data.Recognizer), data)
		return
	}
	httptransport.RespondSuccess(c, status, data, "")
}
