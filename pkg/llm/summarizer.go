// Package llm summarizes articles with an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-pkgz/lgr"
	"github.com/invopop/jsonschema"
	"github.com/sashabaranov/go-openai"

	"github.com/umputun/newsvault/pkg/config"
	"github.com/umputun/newsvault/pkg/domain"
)

// ErrFatal is returned for environment errors which make every further call fail,
// like missing credentials or unknown model. It aborts the run.
var ErrFatal = errors.New("fatal llm error")

// ChatClient is the subset of openai client used by Summarizer
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Summarizer produces structured summaries of extracted articles
type Summarizer struct {
	client     ChatClient
	config     config.LLMConfig
	policy     RetryPolicy
	categories []string
	systemMsg  string
	schema     string
}

// default system prompt for article summarization
const defaultSystemPrompt = `You are a financial news editor. Summarize the article for an archive of market news.
Write factually, keep numbers, company names and tickers exactly as in the article. Never invent facts.
Write directly about the content. NEVER use phrases like "The article discusses" or "The author explains".
Respond with a single JSON object and nothing else.`

// NewSummarizer creates a new LLM summarizer. Categories limit allowed summary categories, any category is
// accepted if empty.
func NewSummarizer(cfg config.LLMConfig, categories []string) *Summarizer {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	// use custom system prompt if provided, otherwise use default
	systemMsg := cfg.SystemPrompt
	if systemMsg == "" {
		systemMsg = defaultSystemPrompt
	}

	cats := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	return &Summarizer{
		client:     openai.NewClientWithConfig(clientConfig),
		config:     cfg,
		categories: cats,
		systemMsg:  systemMsg,
		schema:     summarySchema(cats),
		policy: RetryPolicy{
			MaxAttempts:     max(cfg.MaxAttempts, 1),
			StandardBackoff: cfg.StandardBackoff,
			ExtendedBackoff: cfg.ExtendedBackoff,
			MaxBackoff:      cfg.MaxBackoff,
		},
	}
}

// Summarize makes the structured summary of the article, retrying empty responses and transient errors.
// Per-article failures are reported in the result status, error is returned for ErrFatal only.
func (s *Summarizer) Summarize(ctx context.Context, article domain.ExtractedArticle) (domain.SummarizedArticle, error) {
	res := domain.SummarizedArticle{ExtractedArticle: article, Status: domain.StatusFailed}

	if s.config.Model == "" {
		return res, fmt.Errorf("%w: model is not configured", ErrFatal)
	}
	if s.config.APIKey == "" && s.config.Endpoint == "" {
		return res, fmt.Errorf("%w: api key is not configured", ErrFatal)
	}

	prompt := s.buildPrompt(article)
	var outcome Outcome
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		var err error
		outcome, err = s.call(ctx, prompt)
		if err != nil {
			res.Err = err.Error()
			return res, err
		}
		if succ, ok := outcome.(Success); ok {
			res.Summary, res.Status, res.Retries = succ.Summary, domain.StatusSuccess, attempt-1
			return res, nil
		}

		delay, retry := outcome.retryDelay(s.policy, attempt)
		if !retry || ctx.Err() != nil {
			break
		}
		lgr.Printf("[DEBUG] attempt %d for %s: %s, retry in %v", attempt, article.URL, outcome, delay)
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}

	res.Retries = res.Attempts - 1
	res.Err = outcome.String()
	if ctx.Err() != nil {
		res.Err = fmt.Sprintf("%s: %v", res.Err, ctx.Err())
	}
	lgr.Printf("[WARN] summarization of %s failed after %d attempts: %s", article.URL, res.Attempts, res.Err)
	return res, nil
}

// call makes a single completion request and classifies its result
func (s *Summarizer) call(ctx context.Context, prompt string) (Outcome, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: float32(s.config.Temperature),
		MaxTokens:   s.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemMsg},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	// add JSON response format if enabled
	if s.config.UseJSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.config.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	}
	defer cancel()

	resp, err := s.client.CreateChatCompletion(callCtx, chatReq)
	if err != nil {
		return classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return EmptyResponse{Reason: emptyReason(resp.Header(), "")}, nil
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return EmptyResponse{Reason: emptyReason(resp.Header(), resp.Choices[0].FinishReason)}, nil
	}

	summary, err := s.parseResponse(content)
	if err != nil {
		return ParseError{Err: err, Raw: content}, nil
	}
	return Success{Summary: summary}, nil
}

// classifyError maps client errors to outcomes. Auth and not-found errors are fatal, invalid requests are terminal.
func classifyError(err error) (Outcome, error) {
	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}

	switch code {
	case http.StatusTooManyRequests:
		return EmptyResponse{Reason: ReasonRateLimit}, nil
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return nil, fmt.Errorf("%w: status %d: %v", ErrFatal, code, err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return RejectedRequest{Code: code, Err: err}, nil
	}
	return TransientError{Err: err}, nil
}

// emptyReason detects why a response came back without content
func emptyReason(hdr http.Header, finish openai.FinishReason) string {
	if hdr != nil && (hdr.Get("x-ratelimit-remaining-requests") == "0" || hdr.Get("x-ratelimit-remaining-tokens") == "0") {
		return ReasonRateLimit
	}
	switch finish {
	case openai.FinishReasonContentFilter:
		return ReasonContentFilter
	case openai.FinishReasonLength:
		return ReasonLength
	}
	return ReasonNoSignal
}

// buildPrompt creates the user prompt with the output schema and the article
func (s *Summarizer) buildPrompt(article domain.ExtractedArticle) string {
	var sb strings.Builder

	if len(s.categories) > 0 {
		sb.WriteString("Allowed categories: ")
		sb.WriteString(strings.Join(s.categories, ", "))
		sb.WriteString("\n\n")
	}
	sb.WriteString("Respond with a JSON object matching this schema:\n")
	sb.WriteString(s.schema)
	sb.WriteString("\n\n")

	sb.WriteString("Title: " + article.Title + "\n")
	if article.FeedSource != "" {
		sb.WriteString("Source: " + article.FeedSource + "\n")
	}
	if article.FeedCategory != "" {
		sb.WriteString("Feed category: " + article.FeedCategory + "\n")
	}
	if !article.PublishedAt.IsZero() {
		sb.WriteString("Published: " + article.PublishedAt.UTC().Format(time.RFC3339) + "\n")
	}
	sb.WriteString("URL: " + article.URL + "\n\n")
	sb.WriteString("Article:\n")
	sb.WriteString(truncate(article.BodyText, s.config.MaxInputChars))
	return sb.String()
}

// parseResponse extracts the JSON object from the response and validates it
func (s *Summarizer) parseResponse(content string) (domain.Summary, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return domain.Summary{}, fmt.Errorf("no json object found in response")
	}

	var summary domain.Summary
	if err := json.Unmarshal([]byte(content[start:end+1]), &summary); err != nil {
		return domain.Summary{}, fmt.Errorf("failed to parse json: %w", err)
	}

	summary.Headline = strings.TrimSpace(summary.Headline)
	summary.Summary = strings.TrimSpace(summary.Summary)
	summary.Sentiment = strings.ToLower(strings.TrimSpace(summary.Sentiment))
	if summary.Headline == "" {
		return domain.Summary{}, fmt.Errorf("headline is required")
	}
	if summary.Summary == "" {
		return domain.Summary{}, fmt.Errorf("summary is required")
	}
	switch summary.Sentiment {
	case "positive", "negative", "neutral":
	default:
		return domain.Summary{}, fmt.Errorf("invalid sentiment %q", summary.Sentiment)
	}

	category, err := s.matchCategory(summary.Category)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.Category = category
	summary.KeyPoints = cleanList(summary.KeyPoints, false)
	summary.Tickers = cleanList(summary.Tickers, true)
	return summary, nil
}

// matchCategory returns the configured spelling of the category
func (s *Summarizer) matchCategory(category string) (string, error) {
	category = strings.TrimSpace(category)
	if len(s.categories) == 0 {
		return category, nil
	}
	for _, c := range s.categories {
		if strings.EqualFold(c, category) {
			return c, nil
		}
	}
	return "", fmt.Errorf("category %q is not allowed", category)
}

// cleanList trims items and drops empty and repeated ones
func cleanList(items []string, upper bool) []string {
	res := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if upper {
			it = strings.ToUpper(strings.TrimPrefix(it, "$"))
		}
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		res = append(res, it)
	}
	return res
}

// summarySchema renders JSON schema of the summary, with category enum if categories are set
func summarySchema(categories []string) string {
	r := &jsonschema.Reflector{DoNotReference: true, RequiredFromJSONSchemaTags: true}
	schema := r.Reflect(&domain.Summary{})
	if len(categories) > 0 && schema.Properties != nil {
		if prop, ok := schema.Properties.Get("category"); ok {
			for _, c := range categories {
				prop.Enum = append(prop.Enum, c)
			}
		}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		lgr.Printf("[WARN] can't marshal summary schema: %v", err)
		return "{}"
	}
	return string(data)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	return string([]rune(s)[:maxChars])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
