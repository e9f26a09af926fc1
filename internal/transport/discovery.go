// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"

	"github.com/AleutianAI/converse/pkg/converse/catalog"
)

// BedrockDiscoveryFetcher implements catalog.DiscoveryFetcher against
// the real AWS Bedrock control-plane APIs (ListFoundationModels,
// ListInferenceProfiles) via the bedrock package — the read-only
// catalog client, distinct from bedrockruntime's inference client.
type BedrockDiscoveryFetcher struct {
	auth *Authenticator
}

// NewBedrockDiscoveryFetcher constructs a fetcher backed by auth.
func NewBedrockDiscoveryFetcher(auth *Authenticator) *BedrockDiscoveryFetcher {
	return &BedrockDiscoveryFetcher{auth: auth}
}

// FetchRegion lists base models and inference profiles visible from
// region, satisfying catalog.DiscoveryFetcher.
func (f *BedrockDiscoveryFetcher) FetchRegion(ctx context.Context, region string) ([]catalog.BaseModel, []catalog.InferenceProfile, error) {
	client, err := f.auth.ControlPlaneClientFor(ctx, region)
	if err != nil {
		return nil, nil, err
	}

	models, err := f.listFoundationModels(ctx, client, region)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: list foundation models in %s: %w", region, err)
	}

	profiles, err := f.listInferenceProfiles(ctx, client, region)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: list inference profiles in %s: %w", region, err)
	}

	return models, profiles, nil
}

func (f *BedrockDiscoveryFetcher) listFoundationModels(ctx context.Context, client *bedrock.Client, region string) ([]catalog.BaseModel, error) {
	out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, err
	}

	models := make([]catalog.BaseModel, 0, len(out.ModelSummaries))
	for _, summary := range out.ModelSummaries {
		models = append(models, catalog.BaseModel{
			ModelName:          derefStr(summary.ModelName),
			Provider:           derefStr(summary.ProviderName),
			ModelID:            derefStr(summary.ModelId),
			Region:             region,
			InputModalities:    modalitiesToStrings(summary.InputModalities),
			OutputModalities:   modalitiesToStrings(summary.OutputModalities),
			StreamingSupported: summary.ResponseStreamingSupported != nil && *summary.ResponseStreamingSupported,
		})
	}
	return models, nil
}

func (f *BedrockDiscoveryFetcher) listInferenceProfiles(ctx context.Context, client *bedrock.Client, region string) ([]catalog.InferenceProfile, error) {
	var profiles []catalog.InferenceProfile
	var token *string

	for {
		out, err := client.ListInferenceProfiles(ctx, &bedrock.ListInferenceProfilesInput{NextToken: token})
		if err != nil {
			return nil, err
		}

		for _, summary := range out.InferenceProfileSummaries {
			profiles = append(profiles, catalog.InferenceProfile{
				ProfileID:     derefStr(summary.InferenceProfileId),
				ModelName:     derefStr(summary.InferenceProfileName),
				TargetRegions: regionsFromModels(summary.Models),
			})
		}

		if out.NextToken == nil {
			break
		}
		token = out.NextToken
	}

	return profiles, nil
}

func modalitiesToStrings(modalities []types.ModelModality) []string {
	out := make([]string, 0, len(modalities))
	for _, m := range modalities {
		out = append(out, string(m))
	}
	return out
}

func regionsFromModels(models []types.InferenceProfileModel) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m.ModelArn == nil {
			continue
		}
		if region, ok := regionFromARN(*m.ModelArn); ok {
			out = append(out, region)
		}
	}
	return out
}
