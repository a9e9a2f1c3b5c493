package hooking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

func noopHook(map[string]any) Callback {
	return func(context.Context, map[string]any, string) (map[string]any, error) {
		return nil, nil
	}
}

func TestRegistryAssignsStableIDs(t *testing.T) {
	r := NewRegistry()
	r.Add(PreToolUse, "Bash", noopHook(nil), noopHook(nil))
	r.Add(PostToolUse, "", noopHook(nil))

	cfg := r.InitConfig()
	require.Len(t, cfg, 2)

	pre := cfg["PreToolUse"]
	require.Len(t, pre, 1)
	assert.Equal(t, "Bash", pre[0].Matcher)
	assert.Equal(t, []string{"hook_0", "hook_1"}, pre[0].HookCallbackIDs)

	post := cfg["PostToolUse"]
	require.Len(t, post, 1)
	assert.Equal(t, []string{"hook_2"}, post[0].HookCallbackIDs)

	for _, id := range []string{"hook_0", "hook_1", "hook_2"} {
		_, ok := r.ByID(id)
		assert.True(t, ok, "missing %s", id)
	}
	_, ok := r.ByID("hook_99")
	assert.False(t, ok)
}

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Empty())
	assert.Nil(t, r.InitConfig())

	r.Add(Stop, "", noopHook(nil))
	assert.False(t, r.Empty())
}

func TestMatcherPatterns(t *testing.T) {
	tests := map[string]struct {
		pattern string
		input   map[string]any
		want    bool
	}{
		"empty pattern matches all": {
			pattern: "",
			input:   map[string]any{"tool_name": "Bash"},
			want:    true,
		},
		"star matches all": {
			pattern: "*",
			input:   map[string]any{},
			want:    true,
		},
		"exact tool name": {
			pattern: "Bash",
			input:   map[string]any{"tool_name": "Bash"},
			want:    true,
		},
		"different tool name": {
			pattern: "Bash",
			input:   map[string]any{"tool_name": "Read"},
			want:    false,
		},
		"pattern without tool in input": {
			pattern: "Bash",
			input:   map[string]any{},
			want:    false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			m := Matcher{Pattern: tc.pattern}
			assert.Equal(t, tc.want, m.Matches(tc.input))
		})
	}
}

func TestRunInvokesInRegistrationOrder(t *testing.T) {
	var calls []string
	record := func(name string, out map[string]any) Callback {
		return func(context.Context, map[string]any, string) (map[string]any, error) {
			calls = append(calls, name)
			return out, nil
		}
	}

	r := NewRegistry()
	r.Add(PreToolUse, "Bash", record("first", map[string]any{"a": 1}))
	r.Add(PreToolUse, "*", record("second", map[string]any{"b": 2, "a": 3}))
	r.Add(PreToolUse, "Read", record("skipped", nil))
	r.Add(PostToolUse, "", record("wrong event", nil))

	out, err := r.Run(context.Background(), PreToolUse, map[string]any{"tool_name": "Bash"}, "toolu_1")
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, calls)
	// Later outputs overwrite earlier keys.
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, out)
}

func TestRunBlockDecisionShortCircuits(t *testing.T) {
	var secondRan bool

	r := NewRegistry()
	r.Add(PreToolUse, "", func(context.Context, map[string]any, string) (map[string]any, error) {
		return map[string]any{"decision": "block", "reason": "nope"}, nil
	})
	r.Add(PreToolUse, "", func(context.Context, map[string]any, string) (map[string]any, error) {
		secondRan = true
		return nil, nil
	})

	out, err := r.Run(context.Background(), PreToolUse, map[string]any{}, "")
	require.NoError(t, err)

	assert.Equal(t, "block", out["decision"])
	assert.Equal(t, "nope", out["reason"])
	assert.False(t, secondRan)
}

func TestRunCallbackErrorAborts(t *testing.T) {
	boom := errors.New("boom")

	r := NewRegistry()
	r.Add(Notification, "", func(context.Context, map[string]any, string) (map[string]any, error) {
		return nil, boom
	})

	_, err := r.Run(context.Background(), Notification, map[string]any{}, "")
	require.Error(t, err)

	engErr, ok := agenterrs.AsEngineError(err)
	require.True(t, ok)
	assert.Equal(t, agenterrs.ErrCodeHookFailed, engErr.Code())
	assert.ErrorIs(t, err, boom)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRegistry()
	r.Add(Stop, "", func(context.Context, map[string]any, string) (map[string]any, error) {
		t.Fatal("callback ran after cancellation")
		return nil, nil
	})

	_, err := r.Run(ctx, Stop, map[string]any{}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNilRegistry(t *testing.T) {
	var r *Registry

	out, err := r.Run(context.Background(), PreToolUse, map[string]any{}, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, r.Empty())

	_, ok := r.ByID("hook_0")
	assert.False(t, ok)
}
