package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"platescan/internal/history"
	"platescan/internal/imaging"
	"platescan/internal/logging"
	"platescan/internal/scan"
	"platescan/internal/services"
	"platescan/internal/services/gemini"
)

type scanRequest struct {
	ImageBase64 string `json:"image_base64"`
	ImageURI    string `json:"image_uri"`
	Save        bool   `json:"save"`
}

type scanResponse struct {
	PlateNumber string          `json:"plate_number"`
	ImageURI    string          `json:"image_uri"`
	Record      *history.Record `json:"record,omitempty"`
}

type historyResponse struct {
	Records []history.Record `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.uploadLimit)
	ctx := c.Request.Context()

	var (
		req    scanRequest
		result scan.Result
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		var data []byte
		req, data, err = readMultipart(c)
		if err != nil {
			s.rejectBody(c, err, err.Error())
			return
		}
		result, err = s.scanner.ScanBytes(ctx, data, req.ImageURI)
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.rejectBody(c, err, "request body must be JSON with image_base64")
			return
		}
		// image_uri only labels the capture; the server never opens paths.
		if strings.TrimSpace(req.ImageBase64) == "" {
			s.badRequest(c, "image_base64 is required; image_uri is a label only")
			return
		}
		data, decodeErr := imaging.DecodeBase64(req.ImageBase64)
		if decodeErr != nil {
			s.badRequest(c, "image_base64 is not valid base64")
			return
		}
		result, err = s.scanner.ScanBytes(ctx, data, req.ImageURI)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	resp := scanResponse{PlateNumber: result.Plate, ImageURI: result.ImageURI}
	if req.Save {
		record, err := s.scanner.Save(ctx, result)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Record = &record
	}
	c.JSON(http.StatusOK, resp)
}

func readMultipart(c *gin.Context) (scanRequest, []byte, error) {
	req := scanRequest{
		ImageURI: strings.TrimSpace(c.PostForm("image_uri")),
		Save:     parseBool(c.PostForm("save")),
	}
	header, err := c.FormFile("image")
	if err != nil {
		return req, nil, fmt.Errorf("multipart field \"image\" is required: %w", err)
	}
	file, err := header.Open()
	if err != nil {
		return req, nil, errors.New("unable to open uploaded image")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return req, nil, fmt.Errorf("unable to read uploaded image: %w", err)
	}
	if req.ImageURI == "" {
		req.ImageURI = header.Filename
	}
	return req, data, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (s *Server) handleHistoryList(c *gin.Context) {
	records, err := s.history.List(c.Request.Context())
	if err != nil {
		s.internalError(c, "list history", err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	c.JSON(http.StatusOK, historyResponse{Records: records})
}

func (s *Server) handleHistoryDelete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	removed, err := s.history.Delete(c.Request.Context(), id)
	if err != nil {
		s.internalError(c, "delete history record", err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errorResponse{Error: "history record not found", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleHistoryClear(c *gin.Context) {
	if err := s.history.Clear(c.Request.Context()); err != nil {
		s.internalError(c, "clear history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// rejectBody answers 413 when the upload limit tripped and 400 otherwise.
func (s *Server) rejectBody(c *gin.Context, err error, message string) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "image exceeds the upload limit", Kind: "bad_request"})
		return
	}
	s.badRequest(c, message)
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: message, Kind: "bad_request"})
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	logging.ErrorWithContext(logging.WithContext(c.Request.Context(), s.logger), op+" failed", "history_error",
		logging.Error(err),
	)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
}

// writeError maps scan and extraction failures onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(c.Request.Context(), s.logger), "scan request failed", "scan_failed",
			logging.String("kind", kind),
			logging.Error(err),
		)
	}
	c.JSON(status, errorResponse{Error: scan.UserMessage(err), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, scan.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, scan.ErrEmptyPlate):
		return http.StatusUnprocessableEntity, "empty_plate"
	}
	if kind := gemini.KindOf(err); kind != "" {
		if kind == gemini.KindConfiguration {
			return http.StatusServiceUnavailable, string(kind)
		}
		return http.StatusBadGateway, string(kind)
	}
	if errors.Is(err, services.ErrValidation) {
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal"
}
