package intent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/llm"
)

func TestParseExecutableIntent(t *testing.T) {
	raw := "```json\n" + `{
		"url": "/api/v1/portfolio",
		"request": "get",
		"description": "Fetch the user's portfolio",
		"body_is_there": false,
		"request_body": [],
		"user_provided_all": true,
		"valid_info": true
	}` + "\n```"
	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.URL != "api/v1/portfolio" || got.Request != "GET" || !got.Executable() {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestParseRejectsUnsafeIntents(t *testing.T) {
	cases := map[string]string{
		"absolute url":  `{"url":"https://evil.example/api","request":"GET","user_provided_all":true,"valid_info":true}`,
		"host relative": `{"url":"//evil.example/api","request":"GET","user_provided_all":true,"valid_info":true}`,
		"dot dot":       `{"url":"api/v1/../../admin","request":"GET","user_provided_all":true,"valid_info":true}`,
		"bad method":    `{"url":"api/v1/portfolio","request":"TRACE","user_provided_all":true,"valid_info":true}`,
		"missing url":   `{"url":"","request":"GET","user_provided_all":true,"valid_info":true}`,
		"not json":      `I think you want the portfolio endpoint`,
		"broken json":   `{"url": "api/v1/portfolio", "request": }`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw); !xerrors.HasCode(err, xerrors.CodeIntentInvalid) {
				t.Fatalf("expected INTENT_INVALID, got %v", err)
			}
		})
	}
}

func TestParseKeepsIncompleteIntentsUnvalidated(t *testing.T) {
	got, err := Parse(`{"url":"","request":"","user_provided_all":false,"missing_data":" recipient address ","valid_info":true}`)
	if err != nil {
		t.Fatalf("incomplete intents must parse: %v", err)
	}
	if got.Executable() || got.MissingData != "recipient address" {
		t.Fatalf("unexpected intent: %+v", got)
	}

	got, err = Parse(`{"valid_info":false}`)
	if err != nil || got.ValidInfo {
		t.Fatalf("invalid info intent: %+v %v", got, err)
	}
}

func TestBody(t *testing.T) {
	cases := []struct {
		name   string
		intent Intent
		want   any
	}{
		{"no body", Intent{BodyIsThere: false, RequestBody: []byte(`{"a":1}`)}, nil},
		{"null", Intent{BodyIsThere: true, RequestBody: []byte(`null`)}, nil},
		{"object", Intent{BodyIsThere: true, RequestBody: []byte(`{"network_name":"POLYGON"}`)},
			map[string]any{"network_name": "POLYGON"}},
		{"descriptor list", Intent{BodyIsThere: true, RequestBody: []byte(`[{"name":"network_name","value":"BSC"},{"name":"type","type":"string"}]`)},
			map[string]any{"network_name": "BSC"}},
		{"empty list", Intent{BodyIsThere: true, RequestBody: []byte(`[]`)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.intent.Body()
			if err != nil {
				t.Fatalf("Body: %v", err)
			}
			if tc.want == nil {
				if got != nil {
					t.Fatalf("expected no body, got %v", got)
				}
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Body() = %v, want %v", got, tc.want)
			}
		})
	}

	bad := Intent{BodyIsThere: true, RequestBody: []byte(`"network=BSC"`)}
	if _, err := bad.Body(); !xerrors.HasCode(err, xerrors.CodeIntentInvalid) {
		t.Fatalf("scalar bodies must be rejected, got %v", err)
	}
}

func TestResolverClassify(t *testing.T) {
	var captured llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		captured = req
		return &llm.Response{Content: `{"url":"api/v1/portfolio","request":"GET","description":"portfolio","body_is_there":false,"user_provided_all":true,"valid_info":true}`}, nil
	})
	r := NewResolver(client)

	got, err := r.Classify(context.Background(), "[1] Portfolio\nurl: api/v1/portfolio", "show me my portfolio")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.URL != "api/v1/portfolio" {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if captured.Temperature != 0 || !captured.JSON || captured.MaxTokens != defaultMaxTokens {
		t.Fatalf("classification must be deterministic JSON: %+v", captured)
	}
	if !strings.Contains(captured.Prompt, "url: api/v1/portfolio") || !strings.Contains(captured.Prompt, `"show me my portfolio"`) {
		t.Fatalf("prompt must embed documentation and message: %s", captured.Prompt)
	}
}

func TestResolverClassifyErrors(t *testing.T) {
	upstream := xerrors.New(xerrors.CodeUpstreamUnavailable, "llm down")
	cases := map[string]llm.Client{
		"upstream": llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) { return nil, upstream }),
		"empty":    llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) { return &llm.Response{Content: "  "}, nil }),
		"garbage":  llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) { return &llm.Response{Content: "sure!"}, nil }),
	}
	for name, client := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewResolver(client).Classify(context.Background(), "doc", "msg"); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
	if _, err := NewResolver(nil).Classify(context.Background(), "doc", "msg"); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("missing client must be reported, got %v", err)
	}
	_, err := NewResolver(cases["upstream"]).Classify(context.Background(), "doc", "msg")
	if !errors.Is(err, upstream) {
		t.Fatalf("upstream error must be propagated, got %v", err)
	}
}

func TestResolverSummarize(t *testing.T) {
	var captured llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		captured = req
		return &llm.Response{Content: "  You hold 1.5 MATIC on Polygon.  "}, nil
	})
	r := NewResolver(client, WithMaxTokens(200))
	intent := &Intent{URL: "api/v1/portfolio", Request: "GET", Description: "portfolio"}

	text, err := r.Summarize(context.Background(), map[string]any{"status": "success", "data": map[string]any{"total": "1.5"}}, "what do I own?", intent)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if text != "You hold 1.5 MATIC on Polygon." {
		t.Fatalf("unexpected summary %q", text)
	}
	if captured.Temperature != 0.7 || captured.JSON || captured.MaxTokens != 200 {
		t.Fatalf("unexpected summarize request: %+v", captured)
	}
	if !strings.Contains(captured.Prompt, "GET api/v1/portfolio") || !strings.Contains(captured.Prompt, `"total": "1.5"`) {
		t.Fatalf("prompt must embed the call and response: %s", captured.Prompt)
	}

	empty := NewResolver(llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{}, nil
	}))
	if _, err := empty.Summarize(context.Background(), nil, "msg", intent); err == nil {
		t.Fatalf("empty summaries must be an error")
	}
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	var captured llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		captured = req
		return &llm.Response{Content: "ok"}, nil
	})
	// 引号后的多字节字符使截断点落在字符中间。
	response := strings.Repeat("钱", maxResponseChars)
	if _, err := NewResolver(client).Summarize(context.Background(), response, "msg", &Intent{URL: "api/v1/portfolio", Request: "GET"}); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !utf8.ValidString(captured.Prompt) || !strings.Contains(captured.Prompt, "...(truncated)") {
		t.Fatalf("prompt must be truncated to valid UTF-8")
	}
}
