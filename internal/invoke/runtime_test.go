package invoke

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MEKXH/warden/internal/config"
	"github.com/MEKXH/warden/internal/policy"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

type stubModel struct {
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (m *stubModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{Role: schema.Assistant, Content: m.reply}, nil
}

func (m *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func TestRunCommand_StdinDirAndOutput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	r := New(nil, Options{CommandTimeout: 5 * time.Second})

	out, err := r.RunCommand(context.Background(), "pwd; cat", dir, "payload")
	require.NoError(t, err)
	lines := strings.SplitN(out, "\n", 2)
	require.Len(t, lines, 2)
	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(lines[0])
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)
	assert.Equal(t, "payload", lines[1])
}

func TestRunCommand_NonZeroExitIsError(t *testing.T) {
	skipOnWindows(t)
	r := New(nil, Options{})

	_, err := r.RunCommand(context.Background(), "echo broken >&2; exit 3", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestRunCommand_Timeout(t *testing.T) {
	skipOnWindows(t)
	r := New(nil, Options{CommandTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := r.RunCommand(context.Background(), "sleep 5", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestClassify_CLIBackendPassesModelAndStdin(t *testing.T) {
	skipOnWindows(t)
	r := New(nil, Options{
		Backend:      BackendCLI,
		CLICommand:   "sh",
		CLIArgs:      []string{"-c", `echo "$@"; cat`, "fake-model"},
		ResolveModel: config.DefaultConfig().ResolveModel,
	})

	out, err := r.Classify(context.Background(), "is it risky?\n", "haiku")
	require.NoError(t, err)
	assert.Equal(t, "--model claude-haiku-4-5\nis it risky?", out)
}

func TestRewrite_CLIFailureIncludesStderr(t *testing.T) {
	skipOnWindows(t)
	r := New(nil, Options{
		Backend:    BackendCLI,
		CLICommand: "sh",
		CLIArgs:    []string{"-c", "echo quota exceeded >&2; exit 1", "fake-model"},
	})

	_, err := r.Rewrite(context.Background(), "x", "sonnet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestRewrite_APIBackendCachesModels(t *testing.T) {
	stub := &stubModel{reply: "rewritten\n"}
	var built []string
	r := New(nil, Options{
		Backend:      BackendAPI,
		ResolveModel: config.DefaultConfig().ResolveModel,
		NewModel: func(_ context.Context, id string) (model.BaseChatModel, error) {
			built = append(built, id)
			return stub, nil
		},
	})

	for i := 0; i < 2; i++ {
		out, err := r.Rewrite(context.Background(), "make it quiet", "sonnet")
		require.NoError(t, err)
		assert.Equal(t, "rewritten", out)
	}
	assert.Equal(t, []string{"claude-sonnet-4-5"}, built)
	require.Len(t, stub.inputs, 2)
	assert.Equal(t, schema.User, stub.inputs[0][0].Role)
	assert.Equal(t, "make it quiet", stub.inputs[0][0].Content)
}

func TestClassify_APIErrors(t *testing.T) {
	r := New(nil, Options{
		Backend: BackendAPI,
		NewModel: func(context.Context, string) (model.BaseChatModel, error) {
			return nil, errors.New("no provider configured")
		},
	})
	_, err := r.Classify(context.Background(), "x", "haiku")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no provider configured")

	r = New(nil, Options{Backend: BackendAPI, NewModel: func(context.Context, string) (model.BaseChatModel, error) {
		return &stubModel{err: errors.New("rate limited")}, nil
	}})
	_, err = r.Classify(context.Background(), "x", "haiku")
	require.ErrorContains(t, err, "rate limited")
}

func TestLoadPolicies_DelegatesToLoader(t *testing.T) {
	_, err := New(nil, Options{}).LoadPolicies("x")
	require.Error(t, err)

	loader, err := policy.NewFileLoader()
	require.NoError(t, err)
	_, err = New(loader, Options{}).LoadPolicies(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	r, err := NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, BackendCLI, r.opts.Backend)
	assert.Equal(t, "claude", r.opts.CLICommand)
	assert.Equal(t, 30*time.Second, r.opts.ClassifierTimeout)
	assert.Equal(t, 60*time.Second, r.opts.RewriteTimeout)
}
