package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

// fakeSandbox is an in-memory Sandbox for exercising the dispatcher and
// the pool without a real backend.
type fakeSandbox struct {
	mu          sync.Mutex
	id          string
	connected   bool
	connects    int
	disconnects int
	files       map[string]string
	commands    []string

	lastFilePattern string

	connectErr error
}

func newFakeSandbox(id string) *fakeSandbox {
	return &fakeSandbox{id: id, files: map[string]string{}}
}

func (f *fakeSandbox) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeSandbox) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSandbox) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeSandbox) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.disconnects++
		f.connected = false
	}
	return nil
}

func (f *fakeSandbox) ok(output string) *tools.Result {
	return &tools.Result{
		Success:   true,
		Output:    output,
		SandboxID: f.id,
		Timestamp: time.Now(),
	}
}

func (f *fakeSandbox) ExecuteBash(ctx context.Context, command string, timeout time.Duration) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	f.commands = append(f.commands, command)
	return f.ok("ran: " + command), nil
}

func (f *fakeSandbox) ReadFile(ctx context.Context, path string) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	content, exists := f.files[path]
	if !exists {
		return tools.Failure(fmt.Sprintf("reading %s: no such file", path)), nil
	}
	return f.ok(content), nil
}

func (f *fakeSandbox) WriteFile(ctx context.Context, path, content string) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	_, existed := f.files[path]
	f.files[path] = content
	r := f.ok(fmt.Sprintf("wrote %d bytes to %s", len(content), path))
	if existed {
		r.FilesModified = []string{path}
	} else {
		r.FilesCreated = []string{path}
	}
	return r, nil
}

func (f *fakeSandbox) ListFiles(ctx context.Context, path, pattern string) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	var names []string
	for name := range f.files {
		if pattern != "" {
			if ok, _ := matchBase(pattern, name); !ok {
				continue
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return f.ok(strings.Join(names, "\n")), nil
}

func (f *fakeSandbox) SearchFiles(ctx context.Context, pattern, path, filePattern string) (*tools.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, ErrNotConnected
	}
	f.lastFilePattern = filePattern
	var matches []string
	for name, content := range f.files {
		if strings.Contains(content, pattern) {
			matches = append(matches, name+":1:"+content)
		}
	}
	sort.Strings(matches)
	return f.ok(strings.Join(matches, "\n")), nil
}

func matchBase(pattern, name string) (bool, error) {
	return filepath.Match(pattern, filepath.Base(name))
}
