package compiler

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnostics(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   []Diagnostic
	}{
		{
			name:   "GoCompiler",
			output: "# example.com/app\n./main.go:12:5: undefined: foo\n./main.go:20:2: declared and not used: x\n",
			want: []Diagnostic{
				{File: "./main.go", Line: 12, Column: 5, Message: "undefined: foo"},
				{File: "./main.go", Line: 20, Column: 2, Message: "declared and not used: x"},
			},
		},
		{
			name:   "FileAndLine",
			output: "server.go:7: missing return\n",
			want:   []Diagnostic{{File: "server.go", Line: 7, Message: "missing return"}},
		},
		{
			name:   "TypeScript",
			output: "src/index.ts(4,10): error TS2322: Type 'string' is not assignable to type 'number'.\n",
			want: []Diagnostic{{
				File:    "src/index.ts",
				Line:    4,
				Column:  10,
				Message: "TS2322: Type 'string' is not assignable to type 'number'.",
			}},
		},
		{
			name:   "Unstructured",
			output: "\n  something went wrong\n",
			want:   []Diagnostic{{Message: "something went wrong"}},
		},
		{
			name:   "Blank",
			output: " \n\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseDiagnostics(tt.output))
		})
	}
}

func TestParseDiagnostics_OversizedLine(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 2<<20)
	output := "./main.go:12:5: undefined: foo\n" + long + "\n./main.go:30:1: missing return\n"

	diags := ParseDiagnostics(output)

	require.Len(t, diags, 2)
	assert.Equal(t, Diagnostic{File: "./main.go", Line: 12, Column: 5, Message: "undefined: foo"}, diags[0])
	last := diags[len(diags)-1]
	assert.Empty(t, last.File)
	assert.Contains(t, last.Message, "missing return")
}

func TestDiagnostic_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom", Diagnostic{Message: "boom"}.String())
	assert.Equal(t, "a.go: boom", Diagnostic{File: "a.go", Message: "boom"}.String())
	assert.Equal(t, "a.go:3: boom", Diagnostic{File: "a.go", Line: 3, Message: "boom"}.String())
	assert.Equal(t, "a.go:3:9: boom", Diagnostic{File: "a.go", Line: 3, Column: 9, Message: "boom"}.String())
}

func TestFailure_Error(t *testing.T) {
	t.Parallel()

	err := &Failure{Diagnostics: []Diagnostic{{File: "a.go", Line: 1, Message: "x"}}}
	assert.Contains(t, err.Error(), "1 diagnostic(s)")
	assert.Contains(t, err.Error(), "a.go:1: x")
	assert.Equal(t, "compilation failed", (&Failure{}).Error())
}

func TestEmitter(t *testing.T) {
	t.Parallel()

	t.Run("OrderAndRegistration", func(t *testing.T) {
		t.Parallel()

		e := newEmitter()
		defer e.close()

		var (
			mu  sync.Mutex
			got []string
		)
		record := func(s string) Handler {
			return func(ev Event) {
				mu.Lock()
				defer mu.Unlock()
				got = append(got, s+":"+ev.Kind.String())
			}
		}
		e.on(EventStarted, record("a"))
		e.on(EventSucceeded, record("a"))
		e.on(EventSucceeded, record("b"))
		e.on(EventFailed, record("a"))

		e.emit(Event{Kind: EventStarted})
		e.emit(Event{Kind: EventSucceeded})
		e.emit(Event{Kind: EventStarted})
		e.emit(Event{Kind: EventFailed})
		e.flush()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{
			"a:started",
			"a:succeeded",
			"b:succeeded",
			"a:started",
			"a:failed",
		}, got)
	})

	t.Run("EmitDoesNotWaitForHandlers", func(t *testing.T) {
		t.Parallel()

		e := newEmitter()
		release := make(chan struct{})
		e.on(EventStarted, func(Event) { <-release })

		done := make(chan struct{})
		go func() {
			for range 10 {
				e.emit(Event{Kind: EventStarted})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emit blocked on a slow handler")
		}
		close(release)
		e.close()
	})

	t.Run("NothingAfterClose", func(t *testing.T) {
		t.Parallel()

		e := newEmitter()
		var (
			mu    sync.Mutex
			count int
		)
		e.on(EventSucceeded, func(Event) {
			mu.Lock()
			defer mu.Unlock()
			count++
		})

		e.emit(Event{Kind: EventSucceeded})
		e.flush()
		e.close()
		e.emit(Event{Kind: EventSucceeded})
		e.close()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, count)
	})
}

func TestWatcher_Filters(t *testing.T) {
	t.Parallel()

	w := &watcher{
		root:    "/project",
		include: []string{"**/*.go", "go.mod"},
		exclude: []string{".git/**", "bin/**", "**/*_test.go"},
	}

	assert.True(t, w.relevant("/project/main.go"))
	assert.True(t, w.relevant("/project/internal/app/server.go"))
	assert.True(t, w.relevant("/project/go.mod"))
	assert.False(t, w.relevant("/project/README.md"))
	assert.False(t, w.relevant("/project/internal/app/server_test.go"))
	assert.False(t, w.relevant("/project/bin/tool.go"))

	assert.True(t, w.excluded("/project/.git", true))
	assert.True(t, w.excluded("/project/bin", true))
	assert.False(t, w.excluded("/project/internal", true))

	all := &watcher{root: "/project"}
	assert.True(t, all.relevant("/project/anything.txt"))
}

func TestNewWatcher_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := newWatcher(t.Context(), t.TempDir(), []string{"."}, []string{"[a-"}, nil, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid watch pattern")
}
