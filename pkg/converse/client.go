// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package converse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	smithy "github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/converse/internal/obsmetrics"
	"github.com/AleutianAI/converse/internal/transport"
	"github.com/AleutianAI/converse/pkg/converse/assemble"
	"github.com/AleutianAI/converse/pkg/converse/catalog"
	"github.com/AleutianAI/converse/pkg/converse/convtypes"
	"github.com/AleutianAI/converse/pkg/converse/filter"
	"github.com/AleutianAI/converse/pkg/converse/parallel"
	"github.com/AleutianAI/converse/pkg/converse/retry"
	"github.com/AleutianAI/converse/pkg/converse/validate"
)

// tracer follows the teacher's package-level otel.Tracer(name) idiom
// (services/llm/ollama_llm.go): spans wrap RPC attempts and parallel
// dispatch, exported through whatever TracerProvider the host process
// registers with otel.SetTracerProvider (a no-op provider if none is).
var tracer = otel.Tracer("aleutian.converse")

// Client is the converse library's entry point: it resolves friendly
// model names and regions against a discovered catalog, retries a call
// across targets under the classified-error state machine, and
// assembles blocking, streaming, and parallel responses. A Client is
// safe for concurrent use by multiple goroutines, mirroring the
// teacher's MultiModelManager.
type Client struct {
	models  []string
	regions []string

	catalog *catalog.Catalog
	retryer *retry.Manager
	auth    *transport.Authenticator
	metrics *obsmetrics.Metrics
	logger  *slog.Logger

	opts *clientOptions
}

// New constructs a Client for models discoverable across regions.
// Construction resolves the catalog (spec.md §4.1): a valid file cache,
// then live discovery, then the bundled fallback snapshot, failing fast
// with a *ConfigurationError if no configured model ends up reachable.
func New(ctx context.Context, models, regions []string, opts ...Option) (*Client, error) {
	o := defaultClientOptions()
	for _, fn := range opts {
		fn(o)
	}

	logger := slog.Default()

	metrics, err := obsmetrics.New("converse")
	if err != nil {
		return nil, fmt.Errorf("converse: constructing metrics: %w", err)
	}

	auth := transport.NewAuthenticator(awsOptFnsFromEnv()...)
	fetcher := transport.NewBedrockDiscoveryFetcher(auth)

	cacheCfg := catalog.CacheConfig{
		Mode:       o.cacheMode,
		Directory:  o.cacheDir,
		TTL:        o.cacheTTL,
		AutoReload: o.cacheAutoReload,
	}

	cat, err := catalog.New(ctx, models, regions, cacheCfg, fetcher, logger)
	if err != nil {
		var ce interface {
			Error() string
			UnreachableModels() []string
			UnreachableRegions() []string
		}
		if errors.As(err, &ce) {
			return nil, &ConfigurationError{
				Message:           ce.Error(),
				UnreachableModels: ce.UnreachableModels(),
				UnreachableRegions: ce.UnreachableRegions(),
			}
		}
		return nil, &ConfigurationError{Message: err.Error()}
	}

	if o.cacheAutoReload {
		if _, err := cat.WatchCacheFile(ctx); err != nil {
			logger.Warn("converse: cache auto-reload watch failed to start", "error", err)
		}
	}

	return &Client{
		models:  append([]string(nil), models...),
		regions: append([]string(nil), regions...),
		catalog: cat,
		retryer: retry.NewManager(o.retryConfig, logger),
		auth:    auth,
		metrics: metrics,
		logger:  logger,
		opts:    o,
	}, nil
}

// awsOptFnsFromEnv returns no extra LoadOptions, so every region's client
// is built from the default AWS config chain; it follows the teacher's
// habit of isolating AWS config wiring behind one function.
func awsOptFnsFromEnv() []func(*awsconfig.LoadOptions) error {
	return nil
}

// Converse performs one blocking converse call, applying per-call
// CallOptions over the client's configured defaults (spec.md §4.6).
func (c *Client) Converse(ctx context.Context, req Request, callOpts ...CallOption) (Response, error) {
	req = req.Clone()
	for _, fn := range callOpts {
		fn(&req)
	}
	c.applyDefaults(&req)

	ctx, span := tracer.Start(ctx, "converse.Converse")
	defer span.End()
	span.SetAttributes(
		attribute.String("converse.request_id", req.RequestID),
		attribute.StringSlice("converse.models", req.Models),
		attribute.StringSlice("converse.regions", req.Regions),
	)

	if err := validate.Request(&req, c.opts.maxBlockBytes); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return Response{}, &RequestValidationError{ValidationErrors: []string{err.Error()}}
	}

	targets, err := c.planTargets(req)
	if err != nil {
		span.SetStatus(codes.Error, "no reachable targets")
		return Response{}, err
	}

	f := filter.New(req)
	disabled := make(map[FeatureTag]struct{})

	var finalRaw convtypes.RawResponse
	var finalTarget retry.Target
	var finalAccess string

	result := c.retryer.Run(ctx, targets, disabled, func(ctx context.Context, target retry.Target, disabledNow map[convtypes.FeatureTag]struct{}) error {
		ctx, attemptSpan := tracer.Start(ctx, "converse.rpc")
		defer attemptSpan.End()
		attemptSpan.SetAttributes(attribute.String("converse.model", target.Model), attribute.String("converse.region", target.Region))

		filtered := f.Apply(disabledNow)

		rtClient, err := c.auth.RuntimeClientFor(ctx, target.Region)
		if err != nil {
			attemptSpan.SetStatus(codes.Error, err.Error())
			return err
		}

		access, ok := c.catalog.GetAccessInfo(target.Model, target.Region)
		if !ok {
			attemptSpan.SetStatus(codes.Error, "model unreachable from region")
			return &ModelAccessError{ModelName: target.Model, Region: target.Region}
		}
		tgt := transport.Target{ID: accessID(access), AccessMethodUsed: string(access.AccessMethod)}

		start := time.Now()
		raw, err := transport.Converse(ctx, rtClient, tgt, filtered)
		c.metrics.RecordAttempt(ctx, target.Model, target.Region, "blocking", err == nil)
		if err != nil {
			c.metrics.RecordRetryDelay(ctx, target.Model, target.Region, time.Since(start).Seconds())
			attemptSpan.SetStatus(codes.Error, err.Error())
			c.logger.Warn("converse: attempt failed", "model", target.Model, "region", target.Region, "trace_id", traceIDFrom(ctx), "error", err)
			return classifyTransportError(err)
		}

		finalRaw = raw
		finalTarget = target
		finalAccess = tgt.AccessMethodUsed
		return nil
	})

	if !result.Succeeded {
		span.SetStatus(codes.Error, "all targets exhausted")
		if c.opts.strictErrors {
			return Response{}, exhaustedError(result)
		}
		return assembleFailure(result), nil
	}

	return assemble.AssembleBlocking(finalRaw, finalTarget.Model, finalTarget.Region, finalAccess, result.Attempts, disabledList(result.DisabledFeatures), result.Warnings), nil
}

// ConverseStream performs one streaming converse call, pulling chunks
// through the returned StreamAssembler as targets are retried
// mid-stream per spec.md §4.4's stream-recovery rule.
func (c *Client) ConverseStream(ctx context.Context, req Request, callOpts ...CallOption) (*assemble.StreamAssembler, error) {
	req = req.Clone()
	for _, fn := range callOpts {
		fn(&req)
	}
	c.applyDefaults(&req)
	req.Streaming = true

	ctx, span := tracer.Start(ctx, "converse.ConverseStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("converse.request_id", req.RequestID),
		attribute.StringSlice("converse.models", req.Models),
		attribute.StringSlice("converse.regions", req.Regions),
	)

	if err := validate.Request(&req, c.opts.maxBlockBytes); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return nil, &RequestValidationError{ValidationErrors: []string{err.Error()}}
	}

	targets, err := c.planTargets(req)
	if err != nil {
		span.SetStatus(codes.Error, "no reachable targets")
		return nil, err
	}
	if len(targets) == 0 {
		span.SetStatus(codes.Error, "no targets to attempt")
		return nil, &RegionDistributionError{Message: "no targets to attempt"}
	}

	f := filter.New(req)
	var assembler *assemble.StreamAssembler
	cursor := 0

	result := c.retryer.Run(ctx, targets, map[FeatureTag]struct{}{}, func(ctx context.Context, target retry.Target, disabledNow map[convtypes.FeatureTag]struct{}) error {
		ctx, attemptSpan := tracer.Start(ctx, "converse.rpc.stream")
		defer attemptSpan.End()
		attemptSpan.SetAttributes(attribute.String("converse.model", target.Model), attribute.String("converse.region", target.Region))

		filtered := f.Apply(disabledNow)

		rtClient, err := c.auth.RuntimeClientFor(ctx, target.Region)
		if err != nil {
			attemptSpan.SetStatus(codes.Error, err.Error())
			return err
		}
		access, ok := c.catalog.GetAccessInfo(target.Model, target.Region)
		if !ok {
			attemptSpan.SetStatus(codes.Error, "model unreachable from region")
			return &ModelAccessError{ModelName: target.Model, Region: target.Region}
		}
		tgt := transport.Target{ID: accessID(access), AccessMethodUsed: string(access.AccessMethod)}

		events, err := transport.ConverseStream(ctx, rtClient, tgt, filtered)
		c.metrics.RecordAttempt(ctx, target.Model, target.Region, "stream", err == nil)
		if err != nil {
			attemptSpan.SetStatus(codes.Error, err.Error())
			return classifyTransportError(err)
		}

		for cursor < len(targets) && targets[cursor] != target {
			cursor++
		}

		if assembler == nil {
			assembler = assemble.NewStreamAssembler(events, target.Model, target.Region)
			if c.opts.enableRecovery {
				remaining := append([]retry.Target(nil), targets[cursor+1:]...)
				assembler.SetRecoveryFunc(c.streamRecoveryFunc(f, disabledNow, remaining))
			}
		} else if c.opts.enableRecovery {
			assembler.SwitchTarget(target.Model, target.Region)
		}
		cursor++
		return nil
	})

	if !result.Succeeded && assembler == nil {
		span.SetStatus(codes.Error, "all targets exhausted")
		if c.opts.strictErrors {
			return nil, exhaustedError(result)
		}
		return nil, &StreamingError{Cause: result.LastError}
	}

	return assembler, nil
}

// streamRecoveryFunc builds the RecoveryFunc a StreamAssembler calls when
// a mid-stream EventException arrives (spec.md §4.4's recovery rule): it
// walks the remaining planned targets in order, appends an assistant-role
// prefix of the partial content so the continuation doesn't repeat
// itself, and re-dispatches until one opens or the targets are exhausted.
func (c *Client) streamRecoveryFunc(f *filter.Filter, disabled map[convtypes.FeatureTag]struct{}, remaining []retry.Target) assemble.RecoveryFunc {
	return func(ctx context.Context, partialText string) (<-chan assemble.Event, string, string, bool) {
		for len(remaining) > 0 {
			target := remaining[0]
			remaining = remaining[1:]

			filtered := f.Apply(disabled)
			if partialText != "" {
				filtered.Messages = append(filtered.Messages, convtypes.Message{
					Role:    convtypes.RoleAssistant,
					Content: []convtypes.Block{{Kind: convtypes.BlockText, Text: partialText}},
				})
			}

			rtClient, err := c.auth.RuntimeClientFor(ctx, target.Region)
			if err != nil {
				c.logger.Warn("converse: mid-stream recovery dispatch failed", "model", target.Model, "region", target.Region, "error", err)
				continue
			}
			access, ok := c.catalog.GetAccessInfo(target.Model, target.Region)
			if !ok {
				continue
			}
			tgt := transport.Target{ID: accessID(access), AccessMethodUsed: string(access.AccessMethod)}

			events, err := transport.ConverseStream(ctx, rtClient, tgt, filtered)
			c.metrics.RecordAttempt(ctx, target.Model, target.Region, "stream", err == nil)
			if err != nil {
				c.logger.Warn("converse: mid-stream recovery attempt failed", "model", target.Model, "region", target.Region, "error", err)
				continue
			}
			return events, target.Model, target.Region, true
		}
		return nil, "", "", false
	}
}

// ConverseParallel dispatches a batch of requests with bounded
// concurrency and per-request region assignment (spec.md §4.7).
func (c *Client) ConverseParallel(ctx context.Context, requests []Request) (ParallelResponse, error) {
	ctx, span := tracer.Start(ctx, "converse.ConverseParallel")
	defer span.End()
	span.SetAttributes(attribute.Int("converse.batch_size", len(requests)))

	for i := range requests {
		if err := validate.Request(&requests[i], c.opts.maxBlockBytes); err != nil {
			span.SetStatus(codes.Error, "validation failed")
			return ParallelResponse{}, &RequestValidationError{ValidationErrors: []string{fmt.Sprintf("request %q: %v", requests[i].RequestID, err)}}
		}
	}

	exec := parallel.NewExecutor(
		c.opts.maxConcurrent,
		c.opts.perReqTimeout,
		parallel.FailurePolicy(c.opts.failureHandling),
		c.opts.failureThreshold,
		parallel.LoadBalancing(c.opts.loadBalancing),
	)

	dispatch := func(ctx context.Context, req convtypes.Request, regions []string) convtypes.Response {
		ctx, dispatchSpan := tracer.Start(ctx, "converse.dispatch")
		defer dispatchSpan.End()
		dispatchSpan.SetAttributes(attribute.String("converse.request_id", req.RequestID), attribute.StringSlice("converse.assigned_regions", regions))

		if len(regions) > 0 {
			req.Regions = regions
		}
		resp, err := c.Converse(ctx, req)
		if err != nil {
			dispatchSpan.SetStatus(codes.Error, err.Error())
			return convtypes.Response{Success: false, Warnings: []string{err.Error()}}
		}
		return resp
	}

	resp, err := exec.ConverseParallel(ctx, requests, c.regionsOrDefault(nil), c.opts.targetRegionsPerRequest, dispatch)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ParallelResponse{}, err
	}
	return resp, nil
}

// applyDefaults fills Models/Regions with the client's configured
// defaults when the call didn't override them, and assigns a RequestID
// when the caller left it blank, following the teacher's
// UUID-default-on-construction habit (services/orchestrator/datatypes
// Chat IDs).
func (c *Client) applyDefaults(req *Request) {
	if len(req.Models) == 0 {
		req.Models = c.models
	}
	if len(req.Regions) == 0 {
		req.Regions = c.regions
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
}

func (c *Client) regionsOrDefault(override []string) []string {
	if len(override) > 0 {
		return override
	}
	return c.regions
}

// planTargets orders (model, region) attempt targets per the client's
// configured retry strategy, keeping only targets the catalog reports
// as reachable.
func (c *Client) planTargets(req Request) ([]retry.Target, error) {
	all := retry.PlanTargets(req.Models, req.Regions, c.opts.retryConfig.Strategy)
	out := make([]retry.Target, 0, len(all))
	for _, t := range all {
		if c.catalog.IsAvailable(t.Model, t.Region) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, &ModelAccessError{ModelName: strings.Join(req.Models, ","), Region: strings.Join(req.Regions, ",")}
	}
	return out, nil
}

func accessID(a catalog.AccessInfo) string {
	if a.AccessMethod == catalog.AccessDirect || a.AccessMethod == catalog.AccessBoth {
		if a.ModelID != "" {
			return a.ModelID
		}
	}
	return a.InferenceProfileID
}

func disabledList(m map[convtypes.FeatureTag]struct{}) []convtypes.FeatureTag {
	out := make([]convtypes.FeatureTag, 0, len(m))
	for tag := range m {
		out = append(out, tag)
	}
	return out
}

// assembleFailure mirrors assemble.AssembleFailure with the retry
// Result's own bookkeeping, since the retry package has no dependency
// on assemble (see DESIGN.md's package-boundary notes).
func assembleFailure(result retry.Result) convtypes.Response {
	var warnings []string
	if result.LastError != nil {
		warnings = append(warnings, result.LastError.Error())
	}
	return assemble.AssembleFailure(result.Attempts, warnings)
}

func exhaustedError(result retry.Result) error {
	var models, regionsTried []string
	seen := make(map[string]struct{})
	for _, a := range result.Attempts {
		key := a.ModelName + "@" + a.Region
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		models = append(models, a.ModelName)
		regionsTried = append(regionsTried, a.Region)
	}
	var lastErrs []string
	if result.LastError != nil {
		lastErrs = []string{result.LastError.Error()}
	}
	return &RetryExhaustedError{
		AttemptsMade: len(result.Attempts),
		LastErrors:   lastErrs,
		ModelsTried:  models,
		RegionsTried: regionsTried,
	}
}

// traceIDFrom returns the hex trace ID of the span active on ctx, or ""
// if ctx carries no recording span, for correlating a log line with the
// otel trace it belongs to.
func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// classifyTransportError wraps an AWS SDK error in a
// *retry.ProviderError carrying the smithy API error code, so
// retry.Classify can use the provider's code table before falling back
// to text matching.
func classifyTransportError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &retry.ProviderError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	}
	return &retry.ProviderError{Message: err.Error()}
}
