// Package browser talks to a running Chromium instance over the DevTools
// protocol and provides tab enumeration and close for the save operations.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/syncs"
	"github.com/playwright-community/playwright-go"
)

// Scope selects which open tabs an enumeration returns
type Scope string

// enumeration scopes
const (
	ScopeAll      Scope = "all"      // every open tab
	ScopeActive   Scope = "active"   // visible tabs only
	ScopeInactive Scope = "inactive" // hidden (background) tabs only
)

// ParseScope converts user input to a Scope, empty input means all
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeActive:
		return ScopeActive, nil
	case ScopeInactive:
		return ScopeInactive, nil
	}
	return "", fmt.Errorf("invalid scope %q, must be one of: all, active, inactive", s)
}

// Tab is one open browser tab as seen over CDP. ID is assigned by the
// client and stays valid until the next List call.
type Tab struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	Active     bool   `json:"active"`
}

// Repeater retries failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errs ...error) error
}

// Client connects to a browser over CDP and keeps track of the pages seen
// by the last List call so they can be closed by id afterwards.
type Client struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	seq     uint64

	mu    sync.Mutex
	pages map[string]playwright.Page
}

// Connect attaches to the browser's CDP endpoint, e.g.
// http://127.0.0.1:9222, retrying with the given repeater.
func Connect(ctx context.Context, endpoint string, rptr Repeater) (*Client, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	var brow playwright.Browser
	err = rptr.Do(ctx, func() error {
		var e error
		brow, e = pw.Chromium.ConnectOverCDP(endpoint)
		return e
	})
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			log.Printf("[WARN] failed to stop playwright driver: %v", stopErr)
		}
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", endpoint, err)
	}

	log.Printf("[INFO] connected to browser at %s", endpoint)
	return &Client{pw: pw, browser: brow, pages: map[string]playwright.Page{}}, nil
}

// List enumerates open tabs matching the scope. Pages without a usable
// http(s) URL (about:, chrome:, devtools: and friends) are skipped.
func (c *Client) List(_ context.Context, scope Scope) ([]Tab, error) {
	if !c.browser.IsConnected() {
		return nil, fmt.Errorf("browser connection lost")
	}

	c.mu.Lock()
	c.pages = map[string]playwright.Page{}
	c.mu.Unlock()

	var tabs []Tab
	for _, bctx := range c.browser.Contexts() {
		for _, page := range bctx.Pages() {
			pageURL := page.URL()
			if !usableURL(pageURL) {
				continue
			}

			title, err := page.Title()
			if err != nil {
				log.Printf("[DEBUG] failed to get title for %s: %v", pageURL, err)
			}

			id := "t-" + strconv.FormatUint(atomic.AddUint64(&c.seq, 1), 10)
			tab := Tab{
				ID:         id,
				URL:        pageURL,
				Title:      title,
				FavIconURL: favicon(page, pageURL),
				Active:     isVisible(page),
			}

			c.mu.Lock()
			c.pages[id] = page
			c.mu.Unlock()
			tabs = append(tabs, tab)
		}
	}

	return filterScope(tabs, scope), nil
}

// CloseTabs closes the tabs with the given ids concurrently. Per-tab
// failures and unknown ids are logged, not returned; a save should not fail
// because one source tab refused to close.
func (c *Client) CloseTabs(ctx context.Context, ids []string) {
	gr := syncs.NewSizedGroup(4, syncs.Context(ctx))
	for _, id := range ids {
		c.mu.Lock()
		page, ok := c.pages[id]
		c.mu.Unlock()
		if !ok {
			log.Printf("[WARN] can't close unknown tab %s", id)
			continue
		}
		gr.Go(func(context.Context) {
			if err := page.Close(); err != nil {
				log.Printf("[WARN] failed to close tab %s (%s): %v", id, page.URL(), err)
				return
			}
			log.Printf("[DEBUG] closed tab %s", id)
		})
	}
	gr.Wait()

	c.mu.Lock()
	for _, id := range ids {
		delete(c.pages, id)
	}
	c.mu.Unlock()
}

// Shutdown disconnects from the browser and stops the playwright driver
func (c *Client) Shutdown() {
	if err := c.browser.Close(); err != nil {
		log.Printf("[WARN] failed to disconnect from browser: %v", err)
	}
	if err := c.pw.Stop(); err != nil {
		log.Printf("[WARN] failed to stop playwright driver: %v", err)
	}
}

// isVisible reports whether the page is the visible one in its window
func isVisible(page playwright.Page) bool {
	res, err := page.Evaluate("document.visibilityState")
	if err != nil {
		return false
	}
	state, ok := res.(string)
	return ok && state == "visible"
}

// favicon resolves the page's icon link, falling back to /favicon.ico at
// the page origin
func favicon(page playwright.Page, pageURL string) string {
	res, err := page.Evaluate(`document.querySelector("link[rel~='icon']")?.href || ""`)
	if err == nil {
		if href, ok := res.(string); ok && href != "" {
			return href
		}
	}
	return defaultFavicon(pageURL)
}

// defaultFavicon derives origin + /favicon.ico, empty for non-http URLs
func defaultFavicon(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/favicon.ico"
}

// usableURL accepts http(s) URLs only, filtering browser-internal pages
func usableURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// filterScope drops tabs outside the requested scope
func filterScope(tabs []Tab, scope Scope) []Tab {
	if scope == ScopeAll || scope == "" {
		return tabs
	}
	res := make([]Tab, 0, len(tabs))
	for _, t := range tabs {
		switch scope {
		case ScopeActive:
			if t.Active {
				res = append(res, t)
			}
		case ScopeInactive:
			if !t.Active {
				res = append(res, t)
			}
		}
	}
	return res
}
