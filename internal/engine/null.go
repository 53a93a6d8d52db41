package engine

import "context"

// NullEngine stores nothing: every read misses and every write succeeds.
// It is useful to disable caching for a configuration without touching
// its callers.
type NullEngine struct {
	*Base
}

func NewNullEngine(s Settings) *NullEngine {
	return &NullEngine{Base: newBase(s)}
}

func (e *NullEngine) Read(context.Context, string) (any, error)        { return Miss, nil }
func (e *NullEngine) Write(context.Context, string, any) (bool, error) { return true, nil }
func (e *NullEngine) Delete(context.Context, string) (bool, error)     { return true, nil }
func (e *NullEngine) Clear(context.Context, bool) (bool, error)        { return true, nil }

func (e *NullEngine) ClearPrefix(context.Context, string) (bool, error) { return true, nil }

func (e *NullEngine) ReadMany(_ context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = Miss
	}
	return out, nil
}

func (e *NullEngine) WriteMany(context.Context, map[string]any) (bool, error) { return true, nil }
func (e *NullEngine) DeleteMany(context.Context, []string) (bool, error)      { return true, nil }
func (e *NullEngine) Ping(context.Context) error                              { return nil }
func (e *NullEngine) Close() error                                            { return nil }
