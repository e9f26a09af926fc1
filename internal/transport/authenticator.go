// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport implements the Authenticator, discovery fetcher,
// and event decoder that sit between the orchestrator and AWS Bedrock:
// per-region bedrockruntime client construction, control-plane model
// listing, and ConverseStream event translation into assemble.Event.
package transport

import (
	"context"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/converse/pkg/converse/convtypes"
)

// Authenticator lazily builds and caches one *bedrockruntime.Client and
// one *bedrock.Client per region, following the lazy per-key cache
// pattern of the teacher's MultiModelManager.models map but guarded by
// a singleflight.Group instead of a coarse mutex, so N concurrent
// first-callers for the same region collapse into one
// config.LoadDefaultConfig call instead of racing N of them.
type Authenticator struct {
	group singleflight.Group

	mu        sync.RWMutex
	runtimes  map[string]*bedrockruntime.Client
	controls  map[string]*bedrock.Client

	optFns []func(*awsconfig.LoadOptions) error
}

// NewAuthenticator constructs an Authenticator. optFns are passed
// through to config.LoadDefaultConfig for every region (e.g.
// config.WithSharedConfigProfile, config.WithCredentialsProvider).
func NewAuthenticator(optFns ...func(*awsconfig.LoadOptions) error) *Authenticator {
	return &Authenticator{
		runtimes: make(map[string]*bedrockruntime.Client),
		controls: make(map[string]*bedrock.Client),
		optFns:   optFns,
	}
}

// RuntimeClientFor returns the cached bedrockruntime.Client for region,
// building it on first use. Concurrent callers for the same region
// block on a single in-flight load.
func (a *Authenticator) RuntimeClientFor(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	a.mu.RLock()
	client, ok := a.runtimes[region]
	a.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := a.group.Do("runtime:"+region, func() (any, error) {
		a.mu.RLock()
		if client, ok := a.runtimes[region]; ok {
			a.mu.RUnlock()
			return client, nil
		}
		a.mu.RUnlock()

		cfg, err := awsconfig.LoadDefaultConfig(ctx, append(append([]func(*awsconfig.LoadOptions) error{}, a.optFns...), awsconfig.WithRegion(region))...)
		if err != nil {
			return nil, &convtypes.AuthenticationError{Region: region, Cause: err}
		}

		client := bedrockruntime.NewFromConfig(cfg)
		a.mu.Lock()
		a.runtimes[region] = client
		a.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bedrockruntime.Client), nil
}

// ControlPlaneClientFor returns the cached bedrock.Client (the
// read-only catalog/control-plane API, distinct from bedrockruntime's
// inference API) for region, building it on first use.
func (a *Authenticator) ControlPlaneClientFor(ctx context.Context, region string) (*bedrock.Client, error) {
	a.mu.RLock()
	client, ok := a.controls[region]
	a.mu.RUnlock()
	if ok {
		return client, nil
	}

	v, err, _ := a.group.Do("control:"+region, func() (any, error) {
		a.mu.RLock()
		if client, ok := a.controls[region]; ok {
			a.mu.RUnlock()
			return client, nil
		}
		a.mu.RUnlock()

		cfg, err := awsconfig.LoadDefaultConfig(ctx, append(append([]func(*awsconfig.LoadOptions) error{}, a.optFns...), awsconfig.WithRegion(region))...)
		if err != nil {
			return nil, &convtypes.AuthenticationError{Region: region, Cause: err}
		}

		client := bedrock.NewFromConfig(cfg)
		a.mu.Lock()
		a.controls[region] = client
		a.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bedrock.Client), nil
}
