// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/polish/internal/models"
	"github.com/desertthunder/polish/internal/services"
	"github.com/desertthunder/polish/internal/shared"
)

// Methods of [services.Collection] as recorded by [MockCollection].
const (
	CallItems           = "Items"
	CallVersionToken    = "VersionToken"
	CallReplaceItems    = "ReplaceItems"
	CallAppendItems     = "AppendItems"
	CallMoveRange       = "MoveRange"
	CallInsertItem      = "InsertItem"
	CallRemovePositions = "RemovePositions"
)

type mockPlaylist struct {
	items   []models.Item
	version int
}

func (p *mockPlaylist) token() string { return fmt.Sprintf("snap-%d", p.version) }

type failure struct {
	after int
	err   error
}

// MockCollection is an in-memory [services.Collection].
//
// Every mutation bumps the playlist's version token. Items written by uri (replace, append,
// insert) take their metadata from the catalog of seeded items and get AddedAt = Now; moves keep
// the original item untouched.
type MockCollection struct {
	mu        sync.Mutex
	playlists map[string]*mockPlaylist
	catalog   map[string]models.Item
	calls     map[string]int
	failures  map[string]failure

	// Now stamps AddedAt on written items. Defaults to [time.Now].
	Now func() time.Time
	// Hook runs before every call with the method name and how many times it was called before.
	Hook func(method string, n int)
}

func NewMockCollection() *MockCollection {
	return &MockCollection{
		playlists: map[string]*mockPlaylist{},
		catalog:   map[string]models.Item{},
		calls:     map[string]int{},
		failures:  map[string]failure{},
		Now:       time.Now,
	}
}

var _ services.Collection = (*MockCollection)(nil)

// Seed creates or overwrites a playlist.
func (m *MockCollection) Seed(id string, items []models.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range items {
		if it.URI != "" {
			m.catalog[it.URI] = it
		}
	}
	m.playlists[id] = &mockPlaylist{items: slices.Clone(items), version: 1}
}

// Snapshot returns a copy of a playlist's items.
func (m *MockCollection) Snapshot(id string) []models.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.playlists[id]; ok {
		return slices.Clone(p.items)
	}
	return nil
}

// IDs returns the track ids of a playlist in order.
func (m *MockCollection) IDs(id string) []string {
	var ids []string
	for _, it := range m.Snapshot(id) {
		ids = append(ids, it.ID)
	}
	return ids
}

// Token returns the current version token of a playlist.
func (m *MockCollection) Token(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.playlists[id]; ok {
		return p.token()
	}
	return ""
}

// Calls returns how many times method was called.
func (m *MockCollection) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Mutations returns the number of mutating calls.
func (m *MockCollection) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[CallReplaceItems] + m.calls[CallAppendItems] + m.calls[CallMoveRange] +
		m.calls[CallInsertItem] + m.calls[CallRemovePositions]
}

// FailAfter makes method return err once it has succeeded after times.
func (m *MockCollection) FailAfter(method string, after int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = failure{after: after, err: err}
}

// Touch bumps a playlist's version token without changing its items, as an outside edit would.
func (m *MockCollection) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.playlists[id]; ok {
		p.version++
	}
}

// enter records the call and returns the playlist. The lock is held on success.
func (m *MockCollection) enter(method, id string) (*mockPlaylist, error) {
	m.mu.Lock()
	n := m.calls[method]
	m.calls[method] = n + 1
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		hook(method, n)
	}

	m.mu.Lock()
	if f, ok := m.failures[method]; ok && n >= f.after {
		m.mu.Unlock()
		return nil, f.err
	}
	p, ok := m.playlists[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}
	return p, nil
}

func (m *MockCollection) checkToken(p *mockPlaylist, token string) error {
	if token != "" && token != p.token() {
		return fmt.Errorf("%w: stale snapshot %s (current %s)", shared.ErrRemoteAPI, token, p.token())
	}
	return nil
}

func (m *MockCollection) written(uri string) models.Item {
	it, ok := m.catalog[uri]
	if !ok {
		it = models.Item{ID: uri, URI: uri}
	}
	it.AddedAt = m.Now().UTC()
	return it
}

func (m *MockCollection) Items(ctx context.Context, id string, offset, limit int) (*services.ItemPage, error) {
	p, err := m.enter(CallItems, id)
	if err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = services.PageSize
	}
	start := min(offset, len(p.items))
	end := min(start+limit, len(p.items))
	return &services.ItemPage{
		Items: slices.Clone(p.items[start:end]),
		Total: len(p.items),
		Next:  end < len(p.items),
	}, nil
}

func (m *MockCollection) VersionToken(ctx context.Context, id string) (string, error) {
	p, err := m.enter(CallVersionToken, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()
	return p.token(), nil
}

func (m *MockCollection) ReplaceItems(ctx context.Context, id string, uris []string) (string, error) {
	p, err := m.enter(CallReplaceItems, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if len(uris) > services.PageSize {
		return "", fmt.Errorf("%w: too many uris", shared.ErrInvalidArgument)
	}
	p.items = p.items[:0:0]
	for _, uri := range uris {
		p.items = append(p.items, m.written(uri))
	}
	p.version++
	return p.token(), nil
}

func (m *MockCollection) AppendItems(ctx context.Context, id string, uris []string) (string, error) {
	p, err := m.enter(CallAppendItems, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if len(uris) == 0 || len(uris) > services.PageSize {
		return "", fmt.Errorf("%w: bad batch size %d", shared.ErrInvalidArgument, len(uris))
	}
	for _, uri := range uris {
		p.items = append(p.items, m.written(uri))
	}
	p.version++
	return p.token(), nil
}

func (m *MockCollection) MoveRange(ctx context.Context, id string, start, length, insertBefore int, token string) (string, error) {
	p, err := m.enter(CallMoveRange, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if err := m.checkToken(p, token); err != nil {
		return "", err
	}
	n := len(p.items)
	if start < 0 || length < 1 || start+length > n || insertBefore < 0 || insertBefore > n {
		return "", fmt.Errorf("%w: move %d+%d before %d out of range (len %d)", shared.ErrInvalidArgument, start, length, insertBefore, n)
	}

	moved := slices.Clone(p.items[start : start+length])
	rest := slices.Delete(slices.Clone(p.items), start, start+length)
	at := insertBefore
	if insertBefore > start {
		at -= length
	}
	p.items = slices.Insert(rest, at, moved...)
	p.version++
	return p.token(), nil
}

func (m *MockCollection) InsertItem(ctx context.Context, id, uri string, position int) (string, error) {
	p, err := m.enter(CallInsertItem, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	position = max(0, min(position, len(p.items)))
	p.items = slices.Insert(p.items, position, m.written(uri))
	p.version++
	return p.token(), nil
}

func (m *MockCollection) RemovePositions(ctx context.Context, id string, positions []int, token string) (string, error) {
	p, err := m.enter(CallRemovePositions, id)
	if err != nil {
		return "", err
	}
	defer m.mu.Unlock()

	if err := m.checkToken(p, token); err != nil {
		return "", err
	}
	sorted := slices.Clone(positions)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		pos := sorted[i]
		if pos < 0 || pos >= len(p.items) {
			return "", fmt.Errorf("%w: position %d out of range", shared.ErrInvalidArgument, pos)
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p.items = slices.Delete(p.items, sorted[i], sorted[i]+1)
	}
	p.version++
	return p.token(), nil
}

// MakeItems builds n items with ids t0..t(n-1), titles from titles (cycled) and AddedAt
// one day apart starting at base.
func MakeItems(base time.Time, titles ...string) []models.Item {
	items := make([]models.Item, len(titles))
	for i, title := range titles {
		id := fmt.Sprintf("t%d", i)
		items[i] = models.Item{
			ID:          id,
			URI:         "spotify:track:" + id,
			Title:       title,
			Artists:     []string{"Artist " + title},
			Album:       "Album " + title,
			ReleaseDate: fmt.Sprintf("20%02d-01-01", i),
			AddedAt:     base.Add(time.Duration(i) * 24 * time.Hour).UTC(),
			DurationMS:  (i + 1) * 1000,
		}
	}
	return items
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
