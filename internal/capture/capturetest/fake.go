// Package capturetest provides an in-memory browser for exercising the capture pipeline
// without launching a real engine.
package capturetest

import (
	"context"
	"strings"
	"sync"

	"channel-snapshot/internal/capture"
)

type Evaluation struct {
	Expression string
	Arg        any
}

type Element struct {
	Attributes map[string]string
	Image      []byte
	// EvaluateFunc answers Evaluate calls; nil evaluates to nil.
	EvaluateFunc    func(expression string, arg any) (any, error)
	ScreenshotError error

	mu          sync.Mutex
	evaluations []Evaluation
}

func (e *Element) Evaluate(expression string, arg any) (any, error) {
	e.mu.Lock()
	e.evaluations = append(e.evaluations, Evaluation{Expression: expression, Arg: arg})
	e.mu.Unlock()

	if e.EvaluateFunc == nil {
		return nil, nil
	}
	return e.EvaluateFunc(expression, arg)
}

func (e *Element) Evaluations() []Evaluation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Evaluation(nil), e.evaluations...)
}

func (e *Element) GetAttribute(name string) (string, error) {
	return e.Attributes[name], nil
}

func (e *Element) Screenshot() ([]byte, error) {
	if e.ScreenshotError != nil {
		return nil, e.ScreenshotError
	}
	return e.Image, nil
}

type Page struct {
	// Elements maps a selector to the elements it matches, in document order.
	Elements map[string][]*Element
	// Requests are replayed through the installed route on Goto.
	Requests        []string
	Image           []byte
	GotoError       error
	QueryError      error
	ScreenshotError error
	// RouteError is returned by Abort and Continue of every routed request.
	RouteError error

	mu          sync.Mutex
	handler     func(capture.Route)
	routedFirst bool
	visited     []string
	fetched     []string
	aborted     []string
	fullPage    int
	closed      int
}

func (p *Page) Route(pattern string, handler func(capture.Route)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
	if len(p.visited) == 0 {
		p.routedFirst = true
	}
	return nil
}

func (p *Page) Goto(url string) error {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	handler := p.handler
	p.mu.Unlock()

	for _, request := range append([]string{url}, p.Requests...) {
		if handler == nil {
			p.record(&p.fetched, request)
			continue
		}
		handler(&route{page: p, url: request})
	}
	return p.GotoError
}

func (p *Page) record(list *[]string, url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*list = append(*list, url)
}

func (p *Page) QuerySelector(selector string) (capture.Element, error) {
	if p.QueryError != nil {
		return nil, p.QueryError
	}
	elements := p.Elements[selector]
	if len(elements) == 0 {
		return nil, nil
	}
	return elements[0], nil
}

func (p *Page) QuerySelectorAll(selector string) ([]capture.Element, error) {
	if p.QueryError != nil {
		return nil, p.QueryError
	}
	elements := make([]capture.Element, 0, len(p.Elements[selector]))
	for _, e := range p.Elements[selector] {
		elements = append(elements, e)
	}
	return elements, nil
}

func (p *Page) Screenshot() ([]byte, error) {
	p.mu.Lock()
	p.fullPage++
	p.mu.Unlock()
	if p.ScreenshotError != nil {
		return nil, p.ScreenshotError
	}
	return p.Image, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// RoutedBeforeNavigation reports whether a route was installed before the first Goto.
func (p *Page) RoutedBeforeNavigation() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routedFirst
}

func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// Fetched lists requests that were allowed to reach the network.
func (p *Page) Fetched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.fetched...)
}

func (p *Page) Aborted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.aborted...)
}

// FetchCount counts fetched requests whose URL contains fragment.
func (p *Page) FetchCount(fragment string) int {
	n := 0
	for _, u := range p.Fetched() {
		if strings.Contains(u, fragment) {
			n++
		}
	}
	return n
}

func (p *Page) FullPageScreenshots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fullPage
}

func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type route struct {
	page *Page
	url  string
}

func (r *route) URL() string {
	return r.url
}

func (r *route) Abort() error {
	r.page.record(&r.page.aborted, r.url)
	return r.page.RouteError
}

func (r *route) Continue() error {
	r.page.record(&r.page.fetched, r.url)
	return r.page.RouteError
}

type Session struct {
	Page         *Page
	NewPageError error

	mu     sync.Mutex
	closed int
}

func (s *Session) NewPage(ctx context.Context) (capture.Page, error) {
	if s.NewPageError != nil {
		return nil, s.NewPageError
	}
	if s.Page == nil {
		return nil, nil
	}
	return s.Page, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type Pool struct {
	Session      *Session
	AcquireError error

	mu       sync.Mutex
	acquired int
}

func (p *Pool) Acquire(ctx context.Context) (capture.Session, error) {
	if p.AcquireError != nil {
		return nil, p.AcquireError
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquired++
	return p.Session, nil
}

func (p *Pool) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// NewPool wires page into a pool with a single session.
func NewPool(page *Page) (*Pool, *Session) {
	session := &Session{Page: page}
	return &Pool{Session: session}, session
}
