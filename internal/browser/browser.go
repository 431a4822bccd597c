// Package browser manages headless browser sessions via rod. Each chat
// session gets at most one browser, reaped after idle TTL.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var ErrNoSession = errors.New("no browser session")

const idleTTL = 10 * time.Minute

type instance struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	lastUsed time.Time
}

// Manager maps chat session IDs to live browser instances.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*instance
}

func NewManager() *Manager {
	m := &Manager{instances: make(map[string]*instance)}
	go m.reapLoop()
	return m
}

// Start launches a headless browser for the session, replacing any
// existing one.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.instances[sessionID]; ok {
		old.close()
		delete(m.instances, sessionID)
	}

	l := launcher.New().Headless(true).NoSandbox(true)
	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(url).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect browser: %w", err)
	}
	m.instances[sessionID] = &instance{
		browser:  b,
		launcher: l,
		lastUsed: time.Now(),
	}
	slog.Debug("browser.started", "session_id", sessionID)
	return nil
}

// Navigate opens url in the session's browser, starting one if needed.
func (m *Manager) Navigate(ctx context.Context, sessionID, url string) error {
	inst, err := m.get(sessionID)
	if err != nil {
		if err := m.Start(ctx, sessionID); err != nil {
			return err
		}
		inst, _ = m.get(sessionID)
	}

	page, err := inst.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("load page: %w", err)
	}

	m.mu.Lock()
	if inst.page != nil {
		_ = inst.page.Close()
	}
	inst.page = page
	inst.lastUsed = time.Now()
	m.mu.Unlock()
	return nil
}

// Screenshot captures the current page as PNG bytes.
func (m *Manager) Screenshot(ctx context.Context, sessionID string) ([]byte, error) {
	inst, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	page := inst.page
	inst.lastUsed = time.Now()
	m.mu.Unlock()
	if page == nil {
		return nil, fmt.Errorf("%w: navigate first", ErrNoSession)
	}
	return page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Stop tears down the session's browser if any.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[sessionID]; ok {
		inst.close()
		delete(m.instances, sessionID)
	}
}

// Close tears down every browser.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inst := range m.instances {
		inst.close()
		delete(m.instances, id)
	}
}

func (m *Manager) get(sessionID string) (*instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[sessionID]
	if !ok {
		return nil, ErrNoSession
	}
	return inst, nil
}

func (m *Manager) reapLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		for id, inst := range m.instances {
			if time.Since(inst.lastUsed) > idleTTL {
				inst.close()
				delete(m.instances, id)
				slog.Debug("browser.reaped", "session_id", id)
			}
		}
		m.mu.Unlock()
	}
}

func (i *instance) close() {
	if i.page != nil {
		_ = i.page.Close()
	}
	if i.browser != nil {
		_ = i.browser.Close()
	}
	if i.launcher != nil {
		i.launcher.Cleanup()
	}
}
