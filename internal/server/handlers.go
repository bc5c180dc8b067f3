package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"outreach-mailer/internal/models"
	"outreach-mailer/internal/parser"
)

type companyInfoRequest struct {
	CompanyInfo string `json:"company_info" binding:"required"`
}

type prospectInfoRequest struct {
	ProspectInfo string `json:"prospect_info" binding:"required"`
}

type generateEmailRequest struct {
	ProspectInfo string   `json:"prospect_info" form:"prospect_info"`
	ProspectName string   `json:"prospect_name" form:"prospect_name" binding:"required"`
	CompanyInfo  string   `json:"company_info" form:"company_info"`
	CompanyName  string   `json:"company_name" form:"company_name" binding:"required"`
	SalesRep     string   `json:"sales_rep" form:"sales_rep" binding:"required"`
	Temperature  *float64 `json:"temperature" form:"temperature" binding:"omitempty,gte=0,lte=2"`
}

func (s *Server) getDocument(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		text, err := s.store.Read(c.Request.Context(), name)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{name: text})
	}
}

func (s *Server) updateCompanyInfo(c *gin.Context) {
	var req companyInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	s.writeDocument(c, models.CompanyInfoName, req.CompanyInfo)
}

func (s *Server) updateProspectInfo(c *gin.Context) {
	var req prospectInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	s.writeDocument(c, models.ProspectInfoName, req.ProspectInfo)
}

func (s *Server) writeDocument(c *gin.Context, name, text string) {
	if strings.TrimSpace(text) == "" {
		writeError(c, models.NewInputError("%s must not be empty", name))
		return
	}
	if err := s.store.Write(c.Request.Context(), name, text); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) generateEmail(c *gin.Context) {
	ctx := c.Request.Context()

	var req generateEmailRequest
	multipart := c.ContentType() == binding.MIMEMultipartPOSTForm
	var err error
	if multipart {
		err = c.ShouldBindWith(&req, binding.FormMultipart)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		writeError(c, bindError(err))
		return
	}

	if multipart {
		if req.ProspectInfo, err = formFileText(c, "prospect_file", req.ProspectInfo); err != nil {
			writeError(c, err)
			return
		}
		if req.CompanyInfo, err = formFileText(c, "company_file", req.CompanyInfo); err != nil {
			writeError(c, err)
			return
		}
	}

	if req.ProspectInfo, err = s.fallback(ctx, models.ProspectInfoName, req.ProspectInfo); err != nil {
		writeError(c, err)
		return
	}
	if req.CompanyInfo, err = s.fallback(ctx, models.CompanyInfoName, req.CompanyInfo); err != nil {
		writeError(c, err)
		return
	}

	temperature := s.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	result, err := s.generator.GenerateEmail(ctx, models.GenerationRequest{
		ProspectInfo: req.ProspectInfo,
		ProspectName: req.ProspectName,
		CompanyInfo:  req.CompanyInfo,
		CompanyName:  req.CompanyName,
		SalesRep:     req.SalesRep,
		Temperature:  temperature,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if c.Query("debug") == "true" {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(http.StatusOK, gin.H{"output_text": result.Email})
}

// fallback returns text, or the stored document when text is blank.
func (s *Server) fallback(ctx context.Context, name, text string) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	stored, err := s.store.Read(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return text, nil
	}
	return stored, err
}

// formFileText extracts the text of an uploaded file, or returns current when
// the field is absent.
func formFileText(c *gin.Context, field, current string) (string, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return current, nil
	}
	if err != nil {
		return "", bindError(fmt.Errorf("%s: %w", field, err))
	}
	f, err := fh.Open()
	if err != nil {
		return "", models.NewInputError("%s: %v", field, err)
	}
	defer f.Close()
	return parser.Extract(c.Request.Context(), fh.Filename, f)
}

// bindError turns a request decoding failure into an input error. An
// oversized body keeps its *http.MaxBytesError so it maps to 413.
func bindError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return fmt.Errorf("request body exceeds %d bytes: %w", maxBytesErr.Limit, err)
	}
	return models.NewInputError("invalid request body: %v", err)
}
