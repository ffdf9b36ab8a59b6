// Copyright 2024 Parts Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/your-org/parts-assistant/internal/config"
)

const (
	popupCloseSelector = `button[type="reset"][data-click="close"]`
	settleDuration     = 2 * time.Second
	pageCloseTimeout   = 5 * time.Second
	qnaPageWait        = 5 * time.Second

	// MaxQnAPages bounds how many Q&A pages are read from one product page
	MaxQnAPages = 2
)

// expandSectionsJS opens the collapsed product sections and loads lazy content
const expandSectionsJS = `() => {
	for (const id of ["ProductDescription", "Troubleshooting", "ModelCrossReference", "QuestionsAndAnswers"]) {
		const el = document.getElementById(id);
		if (el && el.getAttribute("aria-expanded") === "false") {
			el.click();
		}
	}
	document.querySelectorAll("span[data-collapse-trigger='show-more'] span.text-link").forEach((el) => el.click());
	window.scrollTo(0, document.body.scrollHeight);
}`

// BrowserFetcher renders pages in headless Chrome through go-rod. The
// browser is launched on first use and shared by later fetches.
type BrowserFetcher struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launch   *launcher.Launcher
	headless bool
	timeout  time.Duration
	agent    string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewBrowserFetcher creates a fetcher that renders pages with Chrome
func NewBrowserFetcher(cfg config.ScraperConfig, logger *zap.Logger) *BrowserFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &BrowserFetcher{
		headless: cfg.Headless,
		timeout:  timeout,
		agent:    cfg.UserAgent,
		limiter:  newLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:   logger,
	}
}

func (f *BrowserFetcher) ensureStarted() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(f.headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	f.browser = browser
	f.launch = l
	f.logger.Info("Browser started", zap.Bool("headless", f.headless))
	return browser, nil
}

// Fetch navigates to pageURL, dismisses the signup popup, expands the
// collapsible sections and returns the rendered HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	browser, err := f.ensureStarted()
	if err != nil {
		return "", err
	}

	base, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer f.closePage(base)

	page := base.Timeout(f.timeout)
	defer page.CancelTimeout()

	if f.agent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.agent}); err != nil {
			f.logger.Debug("Failed to set user agent", zap.Error(err))
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", pageURL, err)
	}

	if has, el, err := page.Has(popupCloseSelector); err == nil && has {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			f.logger.Debug("Failed to close popup", zap.Error(err))
		}
	}

	if _, err := page.Eval(expandSectionsJS); err != nil {
		f.logger.Warn("Failed to expand page sections", zap.String("url", pageURL), zap.Error(err))
	}
	if err := page.WaitStable(settleDuration); err != nil {
		f.logger.Debug("Page did not settle", zap.String("url", pageURL), zap.Error(err))
	}

	pages, err := collectQnA(&rodQnAPager{page: page}, MaxQnAPages)
	if err != nil {
		f.logger.Warn("Failed to page through Q&A", zap.String("url", pageURL), zap.Error(err))
	} else if pages > 1 {
		f.logger.Debug("Collected Q&A pages", zap.String("url", pageURL), zap.Int("pages", pages))
	}

	document, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return document, nil
}

// closePage closes the tab on its own context so an expired request
// context cannot leave it open in the shared browser.
func (f *BrowserFetcher) closePage(base *rod.Page) {
	closer := base.Context(context.Background()).Timeout(pageCloseTimeout)
	defer closer.CancelTimeout()
	if err := closer.Close(); err != nil {
		f.logger.Warn("Failed to close page", zap.Error(err))
	}
}

// Close shuts the browser down if it was started
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launch.Cleanup()
	f.browser = nil
	f.launch = nil
	return err
}
