package server

import (
	"io"
	"net/http"
	"time"

	hcommon "relaygate/internal/handlers/common"
	monenh "relaygate/internal/monitoring"
	"relaygate/internal/pool"
	"relaygate/internal/translator"
	"relaygate/internal/upstream"

	log "github.com/sirupsen/logrus"

	"github.com/gin-gonic/gin"
)

// Pipeline is the request-handling core (C6): for each inbound request it
// acquires a credential from the pool, forwards the call upstream, streams
// or buffers the response back to the client, classifies the outcome, and
// returns the credential. It never holds a credential across more than one
// upstream call.
type Pipeline struct {
	pool     *pool.Handle
	upstream *upstream.Client
}

// NewPipeline wires the request pipeline to a running pool and upstream client.
func NewPipeline(h *pool.Handle, uc *upstream.Client) *Pipeline {
	return &Pipeline{pool: h, upstream: uc}
}

// HandleNative serves POST /v1/messages, the upstream's native message format.
func (p *Pipeline) HandleNative(c *gin.Context) {
	req, err := hcommon.ParseNativeRequest(c, "")
	if err != nil {
		hcommon.AbortWithValidationError(c, err)
		return
	}
	p.dispatch(c, req, translator.FormatNative)
}

// HandleOpenAI serves POST /v1/chat/completions, translating to the native
// wire format via the registry (a no-op passthrough unless a translator for
// openai->native has been registered).
func (p *Pipeline) HandleOpenAI(c *gin.Context) {
	req, err := hcommon.ParseOpenAIChatRequest(c, "")
	if err != nil {
		hcommon.AbortWithValidationError(c, err)
		return
	}
	p.dispatch(c, req, translator.FormatOpenAI)
}

func (p *Pipeline) dispatch(c *gin.Context, req *hcommon.ParsedRequest, from translator.Format) {
	ctx := c.Request.Context()
	start := time.Now()
	endpoint := c.FullPath()

	fp := fingerprintRequest(req.BaseModel, firstMessageContent(req.Raw))
	cred, err := p.pool.Acquire(ctx, &fp)
	if err != nil {
		if _, ok := err.(pool.ErrNoCredentialAvailable); ok {
			hcommon.AbortWithError(c, http.StatusServiceUnavailable, "no_credential_available", "no credential available")
			return
		}
		hcommon.AbortWithError(c, http.StatusInternalServerError, "actor_communication", err.Error())
		return
	}

	upstreamBody := translator.TranslateRequest(from, translator.FormatNative, req.BaseModel, req.RawJSON, req.Stream)

	upCtx, cancel := upstream.WithUpstreamTimeout(ctx, req.Stream)
	defer cancel()

	var resp *http.Response
	forwardErr := monenh.TrackSlowQueryWithDetails(upCtx, "upstream_forward", endpoint, func() error {
		var ferr error
		resp, ferr = p.upstream.Forward(upCtx, cred, "/v1/messages", upstreamBody, upstream.HeaderOverrides(ctx))
		return ferr
	})
	if forwardErr != nil {
		_ = p.pool.Return(ctx, cred, &pool.Reason{Outcome: pool.OutcomeNone})
		monenh.GetGlobalMetricsCollector().RecordRequest(endpoint, http.StatusBadGateway, time.Since(start), false)
		hcommon.AbortWithError(c, http.StatusBadGateway, "upstream_unavailable", forwardErr.Error())
		return
	}
	defer resp.Body.Close()

	if req.Stream {
		p.streamResponse(c, req, from, resp, cred, start, endpoint)
		return
	}
	p.bufferResponse(c, req, from, resp, cred, start, endpoint)
}

func (p *Pipeline) bufferResponse(c *gin.Context, req *hcommon.ParsedRequest, from translator.Format, resp *http.Response, cred *pool.Credential, start time.Time, endpoint string) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = p.pool.Return(c.Request.Context(), cred, &pool.Reason{Outcome: pool.OutcomeNone})
		monenh.GetGlobalMetricsCollector().RecordRequest(endpoint, http.StatusBadGateway, time.Since(start), false)
		hcommon.AbortWithError(c, http.StatusBadGateway, "upstream_read_failed", err.Error())
		return
	}

	refreshed, reason := classifyResponse(resp, body, cred)
	if err := p.pool.Return(c.Request.Context(), refreshed, reason); err != nil {
		log.WithError(err).Warn("pool return failed")
	}

	translated, terr := translator.TranslateResponse(c.Request.Context(), translator.FormatNative, from, req.BaseModel, body)
	if terr != nil {
		translated = body
	}
	recordOutcome(endpoint, resp.StatusCode, start, reason)
	c.Data(resp.StatusCode, "application/json", translated)
}

func (p *Pipeline) streamResponse(c *gin.Context, req *hcommon.ParsedRequest, from translator.Format, resp *http.Response, cred *pool.Credential, start time.Time, endpoint string) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		refreshed, reason := classifyResponse(resp, body, cred)
		_ = p.pool.Return(c.Request.Context(), refreshed, reason)
		translated, terr := translator.TranslateResponse(c.Request.Context(), translator.FormatNative, from, req.BaseModel, body)
		if terr != nil {
			translated = body
		}
		recordOutcome(endpoint, resp.StatusCode, start, reason)
		c.Data(resp.StatusCode, "application/json", translated)
		return
	}

	w, flusher := hcommon.PrepareSSE(c)

	reader, terr := translator.TranslateStream(c.Request.Context(), translator.FormatNative, from, req.BaseModel, resp.Body)
	if terr != nil {
		reader = resp.Body
	}

	scanner := hcommon.NewSSEScanner(reader)
	var lastUsagePayload []byte
	for {
		evt, done, err := scanner.Next()
		if err != nil || done {
			break
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(evt.Raw)
		_, _ = w.Write([]byte("\n\n"))
		if flusher != nil {
			flusher.Flush()
		}
		if _, hasUsage := evt.Data["usage"]; hasUsage {
			lastUsagePayload = evt.Raw
		}
	}
	_ = hcommon.SSEWriteDone(w, flusher)

	refreshed, reason := classifyResponse(resp, lastUsagePayload, cred)
	if err := p.pool.Return(c.Request.Context(), refreshed, reason); err != nil {
		log.WithError(err).Warn("pool return failed")
	}
	recordOutcome(endpoint, resp.StatusCode, start, reason)
}

// recordOutcome feeds the process-wide request collector from a
// classified pipeline outcome, so the admin rolling-window view reflects
// the same success/failure split the pool acted on.
func recordOutcome(endpoint string, statusCode int, start time.Time, reason *pool.Reason) {
	success := reason == nil || reason.Outcome == pool.OutcomeNone || reason.Outcome == pool.OutcomeNormalPro
	monenh.GetGlobalMetricsCollector().RecordRequest(endpoint, statusCode, time.Since(start), success)
}
