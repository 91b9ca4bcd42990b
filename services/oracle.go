package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/utils"
)

// Oracle screens submissions before they are written. Both checks go through
// the same generative endpoint with a structured response schema, so the
// answers come back as machine-readable JSON rather than free text.
type Oracle interface {
	Moderate(ctx context.Context, text string) (ModerationVerdict, error)
	CheckDuplicate(ctx context.Context, name, description string, existing []CandidateItem) (string, error)
}

// ModerationVerdict is the structured answer of the safety check.
type ModerationVerdict struct {
	IsSafe bool   `json:"isSafe"`
	Reason string `json:"reason"`
}

// CandidateItem is the projection sent to the duplicate check. Description
// rides along because the oracle judges overlap on it, not just the name.
type CandidateItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// noDuplicateSentinel is what the model answers when nothing matches.
const noDuplicateSentinel = "NONE"

var ErrOracleUnavailable = errors.New("oracle unavailable")

// GeminiOracle talks to a Gemini-style generateContent endpoint.
type GeminiOracle struct {
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	client     *http.Client
}

// NewGeminiOracle builds an oracle from app configuration.
func NewGeminiOracle(cfg config.AppConfig) *GeminiOracle {
	timeout := time.Duration(cfg.OracleTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &GeminiOracle{
		baseURL:    strings.TrimRight(cfg.OracleBaseURL, "/"),
		apiKey:     cfg.OracleAPIKey,
		model:      cfg.OracleModel,
		maxRetries: cfg.OracleMaxRetries,
		client:     &http.Client{Timeout: timeout},
	}
}

// generateContent request/response shapes, trimmed to what we use.

type oraclePart struct {
	Text string `json:"text"`
}

type oracleContent struct {
	Parts []oraclePart `json:"parts"`
}

type oracleSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]oracleSchema `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

type oracleGenerationConfig struct {
	ResponseMIMEType string        `json:"responseMimeType"`
	ResponseSchema   *oracleSchema `json:"responseSchema,omitempty"`
}

type oracleRequest struct {
	Contents         []oracleContent        `json:"contents"`
	GenerationConfig oracleGenerationConfig `json:"generationConfig"`
}

type oracleResponse struct {
	Candidates []struct {
		Content oracleContent `json:"content"`
	} `json:"candidates"`
}

// Moderate asks whether the text is appropriate for a public site.
func (o *GeminiOracle) Moderate(ctx context.Context, text string) (ModerationVerdict, error) {
	prompt := fmt.Sprintf(
		"Analyze this content for a public rating website. Is it appropriate? "+
			"It must not contain hate speech, explicit content, or severe profanity. "+
			"Content: %q. Respond with JSON.", text)
	schema := &oracleSchema{
		Type: "OBJECT",
		Properties: map[string]oracleSchema{
			"isSafe": {Type: "BOOLEAN"},
			"reason": {Type: "STRING"},
		},
		Required: []string{"isSafe", "reason"},
	}

	raw, err := o.generate(ctx, prompt, schema)
	if err != nil {
		return ModerationVerdict{}, err
	}
	var verdict ModerationVerdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return ModerationVerdict{}, fmt.Errorf("decode moderation verdict: %w", err)
	}
	return verdict, nil
}

// CheckDuplicate asks whether the submission is conceptually identical to an
// existing item, judged on name or substantial description overlap. Returns
// the matched item id, or "" when there is no duplicate.
func (o *GeminiOracle) CheckDuplicate(ctx context.Context, name, description string, existing []CandidateItem) (string, error) {
	if len(existing) == 0 {
		return "", nil
	}
	list, err := json.Marshal(existing)
	if err != nil {
		return "", fmt.Errorf("encode candidate list: %w", err)
	}
	prompt := fmt.Sprintf(
		"New submission: name %q, description %q. Existing items: %s. "+
			"Is the new submission a duplicate of any existing item? Treat it as a "+
			"duplicate if the names are conceptually identical (ignoring case, minor "+
			"typos, or phrasing) or if roughly half or more of the descriptions overlap. "+
			"If yes, return the matching item's id. If no, return %q.",
		name, description, string(list), noDuplicateSentinel)
	schema := &oracleSchema{
		Type: "OBJECT",
		Properties: map[string]oracleSchema{
			"duplicateId": {Type: "STRING"},
		},
		Required: []string{"duplicateId"},
	}

	raw, err := o.generate(ctx, prompt, schema)
	if err != nil {
		return "", err
	}
	var answer struct {
		DuplicateID string `json:"duplicateId"`
	}
	if err := json.Unmarshal(raw, &answer); err != nil {
		return "", fmt.Errorf("decode duplicate answer: %w", err)
	}
	id := strings.TrimSpace(answer.DuplicateID)
	if id == "" || strings.EqualFold(id, noDuplicateSentinel) {
		return "", nil
	}
	return id, nil
}

// generate posts one prompt and returns the first candidate's text, retrying
// transient failures with exponential backoff and jitter.
func (o *GeminiOracle) generate(ctx context.Context, prompt string, schema *oracleSchema) ([]byte, error) {
	body := oracleRequest{
		Contents: []oracleContent{{Parts: []oraclePart{{Text: prompt}}}},
		GenerationConfig: oracleGenerationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", o.baseURL, o.model, o.apiKey)

	var out []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 429 and 5xx are retryable, everything else 4xx is not
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("oracle status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("oracle status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		var parsed oracleResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode oracle response: %w", err))
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return backoff.Permanent(errors.New("oracle returned no candidates"))
		}
		out = []byte(parsed.Candidates[0].Content.Parts[0].Text)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.5
	maxRetries := o.maxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries-1)), ctx)

	if err := backoff.Retry(op, wrapped); err != nil {
		utils.Sugar.Warnf("oracle call failed after retries: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return out, nil
}
