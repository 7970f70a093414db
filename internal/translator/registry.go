// Package translator converts request and response bodies between the
// canonical OpenAI dialect and provider-native dialects.
package translator

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Format identifies a request/response dialect spoken by a client or upstream.
type Format string

const (
	FormatOpenAI Format = "openai"
	FormatCursor Format = "cursor"
)

func (f Format) String() string {
	return string(f)
}

// RequestFunc converts a canonical request body into the target dialect.
type RequestFunc func(model string, body []byte, stream bool) ([]byte, error)

// ResponseFunc converts a target-dialect response body back to the source dialect.
type ResponseFunc func(model string, body []byte) ([]byte, error)

// Registration is one translator pair. Response may be nil.
type Registration struct {
	Source   Format
	Target   Format
	Request  RequestFunc
	Response ResponseFunc
}

var (
	ErrDuplicateRegistration = errors.New("translator: duplicate registration")
	ErrMissingRequestFunc    = errors.New("translator: request function is required")
)

type pair struct {
	source Format
	target Format
}

// Builder collects registrations before the registry is frozen.
// It is meant to be used from a single goroutine during startup.
type Builder struct {
	entries map[pair]Registration
	errs    []error
}

func NewBuilder() *Builder {
	return &Builder{entries: make(map[pair]Registration)}
}

// Register adds a translator pair. Registering the same pair twice is a
// configuration error; the error is returned and also reported by Build.
func (b *Builder) Register(source, target Format, req RequestFunc, resp ResponseFunc) error {
	key := pair{source: source, target: target}

	var err error

	switch {
	case req == nil:
		err = fmt.Errorf("%w: %s -> %s", ErrMissingRequestFunc, source, target)
	case b.has(key):
		err = fmt.Errorf("%w: %s -> %s", ErrDuplicateRegistration, source, target)
	}

	if err != nil {
		b.errs = append(b.errs, err)
		return err
	}

	b.entries[key] = Registration{Source: source, Target: target, Request: req, Response: resp}

	return nil
}

func (b *Builder) has(key pair) bool {
	_, exists := b.entries[key]
	return exists
}

// Build freezes the collected registrations into a read-only Registry.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	entries := make(map[pair]Registration, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}

	return &Registry{entries: entries}, nil
}

// MustBuild is Build for process startup, where a bad table is fatal.
func (b *Builder) MustBuild() *Registry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}

	return reg
}

// Registry is an immutable lookup table of translator pairs. It is safe for
// concurrent use.
type Registry struct {
	entries map[pair]Registration
}

// Lookup returns the registration for the exact (source, target) pair.
// There is no fallback to a passthrough translator.
func (r *Registry) Lookup(source, target Format) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}

	reg, ok := r.entries[pair{source: source, target: target}]

	return reg, ok
}

// Pairs lists every registration ordered by source then target.
func (r *Registry) Pairs() []Registration {
	if r == nil {
		return nil
	}

	out := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})

	return out
}

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the process-wide registry holding every built-in translator.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		b := NewBuilder()
		registerBuiltins(b)
		builtin = b.MustBuild()
	})

	return builtin
}

func registerBuiltins(b *Builder) {
	_ = b.Register(FormatOpenAI, FormatCursor, OpenAIToCursor, nil)
}
