package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"datatoken/internal/domain"
	"datatoken/internal/usecase"
	"datatoken/pkg/canonical"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importDocumentRequest struct {
	Document json.RawMessage `json:"document"`
	Verify   bool            `json:"verify"`
	Publish  bool            `json:"publish"`
	Issuer   string          `json:"issuer"`
}

type importDocumentResponse struct {
	DT         string                     `json:"dt"`
	Type       domain.AssetType           `json:"type"`
	Composable bool                       `json:"composable"`
	Checksum   string                     `json:"checksum"`
	Report     *domain.VerificationReport `json:"report,omitempty"`
	Result     domain.ResultCode          `json:"result,omitempty"`
}

type importTemplateRequest struct {
	Template  json.RawMessage `json:"template"`
	Publish   bool            `json:"publish"`
	Publisher string          `json:"publisher"`
}

type importTemplateResponse struct {
	TID       string            `json:"tid"`
	Name      string            `json:"name"`
	Operation string            `json:"operation"`
	Params    map[string]any    `json:"params"`
	Checksum  string            `json:"checksum"`
	Result    domain.ResultCode `json:"result,omitempty"`
}

type verifyAssetRequest struct {
	WithRespectTo      []string `json:"with_respect_to"`
	SkipChildIntegrity bool     `json:"skip_child_integrity"`
}

type traceResponse struct {
	DT    string                `json:"dt"`
	Paths [][]usecase.TraceNode `json:"paths"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	probes := map[string]string{}
	for name, probe := range s.deps.Probes {
		if err := probe(c.Request.Context()); err != nil {
			status = "degraded"
			probes[name] = err.Error()
			continue
		}
		probes[name] = "ok"
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "probes": probes})
}

func (s *Server) handleChecksum(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeBodyError(c, err)
		return
	}
	checksum, err := canonical.ChecksumJSON(body)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"checksum": checksum})
}

func (s *Server) handleImportDocument(c *gin.Context) {
	var req importDocumentRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Document) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "document is required")
		return
	}
	doc, err := domain.ImportDDOJSON(req.Document)
	if err != nil {
		writeError(c, err)
		return
	}
	out := importDocumentResponse{
		DT:         doc.DT(),
		Type:       doc.Type(),
		Composable: doc.IsComposable(),
		Checksum:   doc.Proof().Checksum,
	}
	if req.Verify {
		if s.deps.Verifier == nil {
			writeError(c, domain.ErrNotFound)
			return
		}
		report := s.deps.Verifier.VerifyServices(c.Request.Context(), doc, usecase.VerifyOptions{})
		out.Report = &report
		if !report.Verified {
			c.JSON(http.StatusUnprocessableEntity, out)
			return
		}
	}
	if req.Publish {
		if s.deps.Assets == nil {
			writeError(c, domain.ErrNotFound)
			return
		}
		code, err := s.deps.Assets.PublishDT(c.Request.Context(), doc, req.Issuer)
		if err != nil {
			writeError(c, err)
			return
		}
		out.Result = code
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleImportTemplate(c *gin.Context) {
	var req importTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Template) == 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "template is required")
		return
	}
	op, err := domain.ImportTemplateJSON(req.Template)
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Publish {
		if s.deps.System == nil {
			writeError(c, domain.ErrNotFound)
			return
		}
		published, code, err := s.deps.System.PublishTemplate(c.Request.Context(), usecase.PublishTemplateRequest{
			Publisher: req.Publisher,
			Metadata:  op.Metadata(),
			Operation: op.Operation(),
			Params:    op.Params(),
			TID:       op.TID(),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, templateResponse(published, code))
		return
	}
	c.JSON(http.StatusOK, templateResponse(op, ""))
}

func templateResponse(op *domain.OpTemplate, code domain.ResultCode) importTemplateResponse {
	return importTemplateResponse{
		TID:       op.TID(),
		Name:      op.Name(),
		Operation: op.Operation(),
		Params:    op.Params(),
		Checksum:  op.Proof().Checksum,
		Result:    code,
	}
}

func (s *Server) handleRegisterEnterprise(c *gin.Context) {
	if s.deps.System == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var ent domain.Enterprise
	if !bindJSON(c, &ent) {
		return
	}
	code, err := s.deps.System.RegisterEnterprise(c.Request.Context(), ent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": code})
}

func (s *Server) handleAssetDetails(c *gin.Context) {
	if s.deps.Assets == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	details, err := s.deps.Assets.DTDetails(c.Request.Context(), c.Param("dt"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (s *Server) handleVerifyAsset(c *gin.Context) {
	if s.deps.Resolver == nil || s.deps.Verifier == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req verifyAssetRequest
	if c.Request.ContentLength != 0 {
		if !bindJSON(c, &req) {
			return
		}
	}
	ctx := c.Request.Context()
	record, doc, err := s.deps.Resolver.ResolveAsset(ctx, c.Param("dt"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.deps.Verifier.VerifyDDOIntegrity(doc, record.Checksum) {
		c.JSON(http.StatusOK, domain.Unverified(doc.DT(), domain.VerificationFailure{
			Code: domain.FailureIntegrityMismatch, DT: doc.DT(), Detail: "document differs from the ledger checksum",
		}))
		return
	}
	report := s.deps.Verifier.VerifyServices(ctx, doc, usecase.VerifyOptions{
		WithRespectTo:      req.WithRespectTo,
		SkipChildIntegrity: req.SkipChildIntegrity || !s.cfg.VerifyIntegrity,
	})
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleUnion(c *gin.Context) {
	if s.deps.Resolver == nil || s.deps.Tracer == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	dt := c.Param("dt")
	_, doc, err := s.deps.Resolver.ResolveAsset(c.Request.Context(), dt)
	if err != nil {
		writeError(c, err)
		return
	}
	paths, err := s.deps.Tracer.TraceDataUnion(c.Request.Context(), doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, traceResponse{DT: dt, Paths: paths})
}

func (s *Server) handleLifecycle(c *gin.Context) {
	if s.deps.Tracer == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	dt := c.Param("dt")
	paths, err := s.deps.Tracer.TraceDTLifecycle(c.Request.Context(), dt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, traceResponse{DT: dt, Paths: paths})
}

func (s *Server) handleServiceTerms(c *gin.Context) {
	if s.deps.Assets == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req usecase.ServiceTermsRequest
	if !bindJSON(c, &req) {
		return
	}
	auth := s.deps.Assets.CheckServiceTerms(c.Request.Context(), req)
	s.logDecision(domain.ActionServiceTerms, req.CDT, req.DT, auth)
	c.JSON(http.StatusOK, auth)
}

func (s *Server) handleRemoteCompute(c *gin.Context) {
	if s.deps.Jobs == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req usecase.RemoteComputeRequest
	if !bindJSON(c, &req) {
		return
	}
	auth := s.deps.Jobs.CheckRemoteCompute(c.Request.Context(), req)
	s.logDecision(domain.ActionRemoteCompute, req.CDT, req.DT, auth)
	c.JSON(http.StatusOK, auth)
}

func (s *Server) logDecision(action, cdt, dt string, auth domain.Authorization) {
	s.log.Info("authorization decided",
		zap.String("action", action),
		zap.String("cdt", cdt),
		zap.String("dt", dt),
		zap.Bool("allowed", auth.Allowed),
		zap.String("reason", auth.Reason),
	)
}

func (s *Server) handleExecCode(c *gin.Context) {
	if s.deps.Jobs == nil || s.deps.Ledger == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JOB_ID", "job id must be an integer")
		return
	}
	leaf := c.Query("dt")
	if leaf == "" {
		writeErrorCode(c, http.StatusBadRequest, "MISSING_DT", "dt query parameter is required")
		return
	}
	ctx := c.Request.Context()
	job, err := s.deps.Ledger.GetJob(ctx, jobID)
	if err != nil {
		writeError(c, err)
		return
	}
	code, err := s.deps.Jobs.FetchExecCode(ctx, job.CDT, leaf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

func (s *Server) handleMarketplace(c *gin.Context) {
	if s.deps.Assets == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	entries, err := s.deps.Assets.Marketplace(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []usecase.MarketplaceEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.deps.Tracer == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	stats, err := s.deps.Tracer.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAudit(c *gin.Context) {
	if s.deps.Audit == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	report, err := s.deps.Audit.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrParse):
		status, code = http.StatusBadRequest, "MALFORMED_IDENTIFIER"
	case errors.Is(err, domain.ErrInvalidIdentifier):
		status, code = http.StatusBadRequest, "INVALID_IDENTIFIER"
	case errors.Is(err, domain.ErrInvalidMetadata), errors.Is(err, domain.ErrMetadataMissing), errors.Is(err, domain.ErrTypeNotSet):
		status, code = http.StatusBadRequest, "INVALID_METADATA"
	case errors.Is(err, domain.ErrInvalidComposition):
		status, code = http.StatusBadRequest, "INVALID_COMPOSITION"
	case errors.Is(err, domain.ErrInvalidService), errors.Is(err, domain.ErrDuplicateIndex), errors.Is(err, domain.ErrTooManyServices):
		status, code = http.StatusBadRequest, "INVALID_SERVICE"
	case errors.Is(err, domain.ErrInvalidDocument), errors.Is(err, domain.ErrIdentifierReassigned), errors.Is(err, domain.ErrDocumentSealed):
		status, code = http.StatusBadRequest, "INVALID_DOCUMENT"
	case errors.Is(err, domain.ErrChecksumMismatch):
		status, code = http.StatusConflict, "CHECKSUM_MISMATCH"
	case errors.Is(err, domain.ErrVerificationFailed):
		status, code = http.StatusUnprocessableEntity, "VERIFICATION_FAILED"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, code = http.StatusConflict, "ALREADY_EXISTS"
	case errors.Is(err, domain.ErrNoPermission):
		status, code = http.StatusForbidden, "NO_PERMISSION"
	}
	writeErrorCode(c, status, code, err.Error())
}

// bindJSON decodes the request body into v and writes the error response
// when it cannot.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeBodyError(c, err)
		return false
	}
	return true
}

func writeBodyError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorCode(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE",
			"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		return
	}
	writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
