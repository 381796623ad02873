package policyopa

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"tabula/internal/domain"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join("..", "..", "..", "policy", "bundles", "admission_v0")
	engine, err := NewEngineFromBundlePath(context.Background(), path, "admission_v0")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func baseAdmissionInput() domain.PolicyInput {
	return domain.PolicyInput{
		Operation: domain.PolicyOpCreate,
		Kind:      "issue",
		Payload:   map[string]any{"title": "tls handshake flakes", "severity": 2},
		Author:    "actor_0123456789abcdef0123456789abcdef",
	}
}

func TestEngineAllowsBaseline(t *testing.T) {
	engine := newEngine(t)
	input := baseAdmissionInput()

	first, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate first: %v", err)
	}
	second, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		t.Fatalf("evaluate second: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("policy evaluation is not deterministic")
	}
	if !first.Result.Allow || len(first.Result.Deny) != 0 {
		t.Fatalf("baseline input denied: %+v", first.Result)
	}
	if first.BundleHash == "" {
		t.Fatal("bundle hash not set")
	}
}

func TestEnginePolicyDenies(t *testing.T) {
	engine := newEngine(t)

	tests := []struct {
		name   string
		mutate func(input *domain.PolicyInput)
		want   []string
	}{
		{
			name: "missing author",
			mutate: func(input *domain.PolicyInput) {
				input.Author = ""
			},
			want: []string{"AUTHOR_REQUIRED"},
		},
		{
			name: "issue without title",
			mutate: func(input *domain.PolicyInput) {
				input.Payload = map[string]any{"severity": 1}
			},
			want: []string{"TITLE_REQUIRED"},
		},
		{
			name: "artifact without uri",
			mutate: func(input *domain.PolicyInput) {
				input.Kind = "artifact"
				input.Payload = map[string]any{"mediaType": "application/json"}
			},
			want: []string{"URI_REQUIRED"},
		},
		{
			name: "solution with scalar steps",
			mutate: func(input *domain.PolicyInput) {
				input.Kind = "solution"
				input.Payload = map[string]any{"steps": "just restart it"}
			},
			want: []string{"STEPS_INVALID"},
		},
		{
			name: "multiple denies sorted",
			mutate: func(input *domain.PolicyInput) {
				input.Author = ""
				input.Payload = map[string]any{"severity": 1}
			},
			want: []string{"AUTHOR_REQUIRED", "TITLE_REQUIRED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := baseAdmissionInput()
			tt.mutate(&input)
			out, err := engine.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if out.Result.Allow {
				t.Fatal("expected deny")
			}
			if got := denyCodes(out.Result.Deny); !reflect.DeepEqual(tt.want, got) {
				t.Fatalf("deny codes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns()")
}

func TestEngineRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, `http.send({"method": "get", "url": "https://example.com"})`)
}

func TestEngineRejectsRand(t *testing.T) {
	rejectBuiltin(t, "rand.intn(10)")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	writeBundleFile(t, dir, "policy.rego", `package tabula.admission
result := {"allow": true, "deny": []} {
  `+expr+`
}`)

	if _, err := NewEngineFromBundlePath(context.Background(), dir, "test"); err == nil {
		t.Fatal("expected builtin to be rejected")
	}
}

func denyCodes(deny []domain.PolicyDeny) []string {
	out := make([]string, 0, len(deny))
	for _, item := range deny {
		out = append(out, item.Code)
	}
	return out
}
