package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuokri/tklserver/errors"
)

type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	dests map[string]Destination
}

func (f *fakeResolver) Resolve(_ context.Context, webhookURL string) (Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, webhookURL)
	dest, ok := f.dests[webhookURL]
	if !ok {
		return Destination{}, errors.WrapInvalid(errors.ErrNotResolvable, "fake", "Resolve", webhookURL)
	}
	return dest, nil
}

func TestLoad_PartialRegistry(t *testing.T) {
	resolver := &fakeResolver{dests: map[string]Destination{
		"https://hooks/1": {ID: 1, Token: "one"},
		"https://hooks/3": {ID: 3, Token: "three"},
	}}

	reg := Load(context.Background(), map[string]string{
		"AB12":    "https://hooks/1",
		"CD34":    "https://hooks/broken",
		"EF56":    "https://hooks/3",
		"TOOLONG": "https://hooks/1",
		"GH78":    "",
	}, resolver, nil)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"AB12", "EF56"}, reg.Idents())

	dest, ok := reg.Lookup("AB12")
	require.True(t, ok)
	assert.Equal(t, Destination{ID: 1, Token: "one"}, dest)

	_, ok = reg.Lookup("CD34")
	assert.False(t, ok, "failed resolution is omitted")
	_, ok = reg.Lookup("TOOLONG")
	assert.False(t, ok)

	assert.Len(t, resolver.calls, 3, "malformed and empty sources are never resolved")
}

func TestRegistry_LookupIsExact(t *testing.T) {
	reg := New(map[string]Destination{"AB12": {ID: 7, Token: "t"}})

	_, ok := reg.Lookup("ab12")
	assert.False(t, ok)
	_, ok = reg.Lookup("AB1")
	assert.False(t, ok)
	dest, ok := reg.Lookup("AB12")
	assert.True(t, ok)
	assert.Equal(t, uint64(7), dest.ID)
}

func TestRegistry_NewCopiesInput(t *testing.T) {
	in := map[string]Destination{"AB12": {ID: 1}}
	reg := New(in)
	in["ZZ99"] = Destination{ID: 2}
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Nil(t *testing.T) {
	var reg *Registry
	_, ok := reg.Lookup("AB12")
	assert.False(t, ok)
	assert.Zero(t, reg.Len())
	assert.Nil(t, reg.Idents())
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	entries := map[string]Destination{}
	for i := 0; i < 50; i++ {
		entries[fmt.Sprintf("S%03d", i)] = Destination{ID: uint64(i)}
	}
	reg := New(entries)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				dest, ok := reg.Lookup(fmt.Sprintf("S%03d", i))
				assert.True(t, ok)
				assert.Equal(t, uint64(i), dest.ID)
			}
		}()
	}
	wg.Wait()
}

func TestDestination_StringHidesToken(t *testing.T) {
	s := Destination{ID: 42, Token: "secret"}.String()
	assert.Contains(t, s, "42")
	assert.NotContains(t, s, "secret")
}
