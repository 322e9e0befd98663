package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"academic-sync-service/internal/retry"
)

var ErrUnknownSource = errors.New("invalid source code")

// Registry maps institution codes to adapters. It is immutable after construction.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		code := NormalizeCode(a.Code())
		if code == "" {
			return nil, errors.New("adapter with empty code")
		}
		if _, dup := r.adapters[code]; dup {
			return nil, fmt.Errorf("duplicate adapter for source %s", code)
		}
		r.adapters[code] = a
	}
	return r, nil
}

// Get looks code up case-insensitively. Unknown codes are permanent errors.
func (r *Registry) Get(code string) (Adapter, error) {
	a, ok := r.adapters[NormalizeCode(code)]
	if !ok {
		return nil, retry.Permanent(fmt.Errorf("%w: %q", ErrUnknownSource, code))
	}
	return a, nil
}

func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.adapters))
	for c := range r.adapters {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
