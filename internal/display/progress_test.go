package display

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewProgressIndicator(t *testing.T) {
	tests := []struct {
		name  string
		total int
	}{
		{name: "valid total", total: 3},
		{name: "single item", total: 1},
		{name: "many items", total: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, tt.total)

			if pi == nil {
				t.Fatal("NewProgressIndicator() returned nil")
			}
			if pi.total != tt.total {
				t.Errorf("total = %d, want %d", pi.total, tt.total)
			}
			if pi.current != 0 {
				t.Errorf("current = %d, want 0", pi.current)
			}
		})
	}
}

func TestProgressIndicator_Start(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		wantOutput string
	}{
		{name: "multiple levels", total: 3, wantOutput: "Loading 3 level(s):\n"},
		{name: "single level", total: 1, wantOutput: "Loading 1 level(s):\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, tt.total)
			pi.Start()

			if got := buf.String(); got != tt.wantOutput {
				t.Errorf("Start() output = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestProgressIndicator_Step(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		label      string
		steps      int
		wantFormat string
	}{
		{name: "first step shows [1/3] format", total: 3, label: "level-1", steps: 1, wantFormat: "[1/3] level-1"},
		{name: "second step shows [2/3] format", total: 3, label: "level-2", steps: 2, wantFormat: "[2/3] level-2"},
		{name: "third step shows [3/3] format", total: 3, label: "level-3", steps: 3, wantFormat: "[3/3] level-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, tt.total)

			for i := 0; i < tt.steps; i++ {
				buf.Reset()
				pi.Step(tt.label)
			}

			got := buf.String()
			if !strings.Contains(got, tt.wantFormat) {
				t.Errorf("Step() output missing format %q, got %q", tt.wantFormat, got)
			}
			if !strings.Contains(got, "\x1b[36m") {
				t.Errorf("Step() output missing cyan ANSI color code, got %q", got)
			}
			if !strings.Contains(got, "\x1b[0m") {
				t.Errorf("Step() output missing ANSI reset code, got %q", got)
			}
			if !strings.HasSuffix(got, "\n") {
				t.Errorf("Step() output missing trailing newline, got %q", got)
			}
		})
	}
}

func TestProgressIndicator_StepShowsBasenameOnly(t *testing.T) {
	tests := []struct {
		name     string
		fullPath string
		wantName string
	}{
		{name: "simple label", fullPath: "level-1", wantName: "level-1"},
		{name: "path with directory", fullPath: "worktrees/worker-1", wantName: "worker-1"},
		{name: "absolute path", fullPath: "/repo/.mahabharatha/worktrees/feature-worker-2", wantName: "feature-worker-2"},
		{name: "nested directories", fullPath: "a/b/c/d/worker-3", wantName: "worker-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, 1)
			pi.Step(tt.fullPath)

			got := buf.String()
			if !strings.Contains(got, tt.wantName) {
				t.Errorf("Step() output missing basename %q, got %q", tt.wantName, got)
			}
			if tt.fullPath != tt.wantName && strings.Contains(got, tt.fullPath) {
				t.Errorf("Step() output should not contain full path %q, got %q", tt.fullPath, got)
			}
		})
	}
}

func TestProgressIndicator_Complete(t *testing.T) {
	tests := []struct {
		name        string
		total       int
		wantMessage string
	}{
		{name: "shows success message with checkmark", total: 3, wantMessage: "Loaded 3 level(s)"},
		{name: "shows success for single item", total: 1, wantMessage: "Loaded 1 level(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, tt.total)
			pi.Complete()

			got := buf.String()
			if !strings.Contains(got, "✓") {
				t.Errorf("Complete() output missing checkmark, got %q", got)
			}
			if !strings.Contains(got, tt.wantMessage) {
				t.Errorf("Complete() output missing message %q, got %q", tt.wantMessage, got)
			}
			if !strings.Contains(got, "\x1b[32m") {
				t.Errorf("Complete() output missing green ANSI color code, got %q", got)
			}
			if !strings.Contains(got, "\x1b[0m") {
				t.Errorf("Complete() output missing ANSI reset code, got %q", got)
			}
			if !strings.HasSuffix(got, "\n") {
				t.Errorf("Complete() output missing trailing newline, got %q", got)
			}
		})
	}
}

func TestProgressIndicator_FullWorkflow(t *testing.T) {
	var buf bytes.Buffer
	pi := NewProgressIndicator(&buf, 3)

	pi.Start()
	output := buf.String()
	if !strings.Contains(output, "Loading 3 level(s):") {
		t.Errorf("Start() missing header, got %q", output)
	}

	buf.Reset()
	pi.Step("level-1")
	output = buf.String()
	if !strings.Contains(output, "[1/3]") || !strings.Contains(output, "level-1") {
		t.Errorf("Step(1) missing expected format, got %q", output)
	}

	buf.Reset()
	pi.Step("level-2")
	output = buf.String()
	if !strings.Contains(output, "[2/3]") || !strings.Contains(output, "level-2") {
		t.Errorf("Step(2) missing expected format, got %q", output)
	}

	buf.Reset()
	pi.Step("level-3")
	output = buf.String()
	if !strings.Contains(output, "[3/3]") || !strings.Contains(output, "level-3") {
		t.Errorf("Step(3) missing expected format, got %q", output)
	}

	buf.Reset()
	pi.Complete()
	output = buf.String()
	if !strings.Contains(output, "✓") || !strings.Contains(output, "Loaded 3 level(s)") {
		t.Errorf("Complete() missing expected format, got %q", output)
	}
}

func TestProgressIndicator_ANSIColors(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		wantCyan  bool
		wantGreen bool
	}{
		{name: "Step uses cyan color", method: "step", wantCyan: true, wantGreen: false},
		{name: "Complete uses green color", method: "complete", wantCyan: false, wantGreen: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			pi := NewProgressIndicator(&buf, 1)

			switch tt.method {
			case "step":
				pi.Step("level-1")
			case "complete":
				pi.Complete()
			}

			got := buf.String()
			hasCyan := strings.Contains(got, "\x1b[36m")
			if hasCyan != tt.wantCyan {
				t.Errorf("Cyan ANSI code present = %v, want %v, output = %q", hasCyan, tt.wantCyan, got)
			}
			hasGreen := strings.Contains(got, "\x1b[32m")
			if hasGreen != tt.wantGreen {
				t.Errorf("Green ANSI code present = %v, want %v, output = %q", hasGreen, tt.wantGreen, got)
			}
			if !strings.Contains(got, "\x1b[0m") {
				t.Errorf("Missing ANSI reset code, output = %q", got)
			}
		})
	}
}

func TestDisplaySingleFile(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantMsg string
	}{
		{name: "relative path", path: "graph.json", wantMsg: "Loading task graph from graph.json..."},
		{name: "absolute path", path: "/repo/docs/graph.yaml", wantMsg: "Loading task graph from /repo/docs/graph.yaml..."},
		{name: "nested path", path: "a/b/c/graph.json", wantMsg: "Loading task graph from a/b/c/graph.json..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			DisplaySingleFile(&buf, tt.path)

			got := buf.String()
			if !strings.Contains(got, tt.wantMsg) {
				t.Errorf("DisplaySingleFile() output = %q, want to contain %q", got, tt.wantMsg)
			}
			if !strings.HasSuffix(got, "\n") {
				t.Errorf("DisplaySingleFile() output missing trailing newline, got %q", got)
			}
		})
	}
}
