package pipeline

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingMiddleware(name string, trace *[]string) Middleware {
	return func(ctx *Context, next Next) error {
		*trace = append(*trace, name+":before")
		err := next()
		*trace = append(*trace, name+":after")
		return err
	}
}

func TestCompose_EmptyRunsTerminal(t *testing.T) {
	called := false
	p := Compose(nil)

	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestCompose_OnionOrder(t *testing.T) {
	var trace []string
	p := Compose([]Middleware{
		recordingMiddleware("a", &trace),
		recordingMiddleware("b", &trace),
	})

	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		trace = append(trace, "handler")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a:before", "b:before", "handler", "b:after", "a:after"}, trace)
}

func TestCompose_ShortCircuit(t *testing.T) {
	var trace []string
	p := Compose([]Middleware{
		func(ctx *Context, next Next) error {
			trace = append(trace, "gate")
			return nil
		},
		recordingMiddleware("never", &trace),
	})

	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		trace = append(trace, "handler")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"gate"}, trace)
}

func TestCompose_MutatesContext(t *testing.T) {
	p := Compose([]Middleware{
		func(ctx *Context, next Next) error {
			ctx.Set("foo", "x")
			return next()
		},
	})

	var seen string
	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		seen = ctx.GetString("foo")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "x", seen)
}

func TestCompose_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	var after bool
	p := Compose([]Middleware{
		func(ctx *Context, next Next) error {
			err := next()
			after = true
			return err
		},
	})

	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, after, "post-processing should run after a failing handler")
}

func TestCompose_NextCalledTwice(t *testing.T) {
	p := Compose([]Middleware{
		func(ctx *Context, next Next) error {
			if err := next(); err != nil {
				return err
			}
			return next()
		},
	})

	calls := 0
	err := p(NewContext("req", nil, nil, nil), func(ctx *Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, ErrNextCalledMultipleTimes)
	assert.Equal(t, 1, calls)
}

func TestCompose_CopiesMiddleware(t *testing.T) {
	var trace []string
	stack := []Middleware{recordingMiddleware("a", &trace)}
	p := Compose(stack)
	stack[0] = recordingMiddleware("replaced", &trace)

	require.NoError(t, p(NewContext("req", nil, nil, nil), nil))
	assert.Equal(t, []string{"a:before", "a:after"}, trace)
}

func TestContext_BindAndAck(t *testing.T) {
	var acked any
	ctx := NewContext("data", json.RawMessage(`{"name":"io"}`), nil, func(data any) error {
		acked = data
		return nil
	})

	var payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, ctx.Bind(&payload))
	assert.Equal(t, "io", payload.Name)

	assert.True(t, ctx.HasAck())
	require.NoError(t, ctx.Ack("received"))
	assert.Equal(t, "received", acked)

	noAck := NewContext("data", nil, nil, nil)
	assert.False(t, noAck.HasAck())
	assert.NoError(t, noAck.Ack("ignored"))
	assert.Error(t, noAck.Bind(&payload))
	assert.NotNil(t, noAck.Context())
}

func TestContext_Keys(t *testing.T) {
	ctx := NewContext("req", nil, nil, nil)
	ctx.Set("a", 1)

	keys := ctx.Keys()
	keys["b"] = 2

	_, ok := ctx.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 1, ctx.MustGet("a"))
	assert.Panics(t, func() { ctx.MustGet("missing") })
}

// Every middleware runs exactly once, in order, around a single handler call.
func TestComposeOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("n middleware wrap the handler symmetrically", prop.ForAll(
		func(n int) bool {
			var trace []int
			stack := make([]Middleware, n)
			for i := 0; i < n; i++ {
				i := i
				stack[i] = func(ctx *Context, next Next) error {
					trace = append(trace, i)
					err := next()
					trace = append(trace, -i-1)
					return err
				}
			}

			handlerCalls := 0
			err := Compose(stack)(NewContext("e", nil, nil, nil), func(ctx *Context) error {
				handlerCalls++
				return nil
			})
			if err != nil || handlerCalls != 1 || len(trace) != 2*n {
				return false
			}
			for i := 0; i < n; i++ {
				if trace[i] != i || trace[2*n-1-i] != -i-1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.Property("a gate at position k stops everything after it", prop.ForAll(
		func(n, k int) bool {
			if k >= n {
				k = n - 1
			}
			ran := make([]bool, n)
			stack := make([]Middleware, n)
			for i := 0; i < n; i++ {
				i := i
				stack[i] = func(ctx *Context, next Next) error {
					ran[i] = true
					if i == k {
						return nil
					}
					return next()
				}
			}

			handlerRan := false
			_ = Compose(stack)(NewContext("e", nil, nil, nil), func(ctx *Context) error {
				handlerRan = true
				return nil
			})
			for i := 0; i < n; i++ {
				if ran[i] != (i <= k) {
					return false
				}
			}
			return !handlerRan
		},
		gen.IntRange(1, 15),
		gen.IntRange(0, 14),
	))

	properties.TestingRun(t)
}
