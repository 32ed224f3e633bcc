package publishers

import (
	"os"
	"path/filepath"
	"testing"
)

func writePublishers(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write publishers file: %v", err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writePublishers(t, "publishers.yaml", `
publishers:
  - id: ops-queue
    type: sqs
    sqs:
      uri: https://sqs.eu-west-1.amazonaws.com/123/extractions
      region: eu-west-1
  - id: audit-topic
    type: sns
    enabled: false
    sns:
      topic_arn: arn:aws:sns:eu-west-1:123:extractions
      region: eu-west-1
  - id: crm-hook
    type: http
    http:
      url: https://crm.example.com/hooks/extractions
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if got := len(reg.All()); got != 3 {
		t.Fatalf("loaded %d publishers, want 3", got)
	}
	if got := len(reg.Enabled()); got != 2 {
		t.Fatalf("enabled %d publishers, want 2", got)
	}

	cfg, ok := reg.ByID("crm-hook")
	if !ok {
		t.Fatalf("crm-hook not found")
	}
	if cfg.HTTP.Method != "POST" {
		t.Fatalf("http.method default = %q, want POST", cfg.HTTP.Method)
	}
	if cfg.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("http.timeout default = %d", cfg.HTTP.TimeoutSeconds)
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			name: "missing id",
			content: `
publishers:
  - type: http
    http:
      url: https://example.com
`,
		},
		{
			name: "sqs without region",
			content: `
publishers:
  - id: q
    type: sqs
    sqs:
      uri: https://example.com/queue
`,
		},
		{
			name: "sns without topic",
			content: `
publishers:
  - id: n
    type: sns
    sns:
      region: eu-west-1
`,
		},
		{
			name: "pubsub without project",
			content: `
publishers:
  - id: g
    type: gcp_pubsub
    gcp_pubsub:
      topic: extractions
`,
		},
		{
			name: "sqs credentials missing secret",
			content: `
publishers:
  - id: q
    type: sqs
    sqs:
      uri: https://example.com/queue
      region: eu-west-1
      credentials:
        access_key_id: AKIAEXAMPLE
`,
		},
		{
			name: "duplicate ids",
			content: `
publishers:
  - id: h
    type: http
    http:
      url: https://example.com
  - id: h
    type: http
    http:
      url: https://example.com
`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writePublishers(t, "publishers.yaml", tc.content)
			if _, err := LoadRegistry(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
