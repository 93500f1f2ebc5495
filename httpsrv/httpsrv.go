// Package httpsrv is a tunable HTTP server for API mocking during automated
// testing: tests register expectation rules, the server answers matching
// requests and 500s everything else, and the test can assert that every
// one-shot rule was consumed.
package httpsrv

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber"
	"github.com/sirupsen/logrus"

	"github.com/httpsrv/go-httpsrv/encode"
	"github.com/httpsrv/go-httpsrv/spec"
)

type (
	// Server owns the rule store and the listener serving it
	Server struct {
		app            *fiber.App
		logger         logrus.FieldLogger
		host           string
		port           int
		configBasePath string
		rules          *store

		mu      sync.Mutex
		running bool
	}

	config struct {
		port           int
		host           string
		configBasePath string
		logger         logrus.FieldLogger
	}

	// Option is a function that can modify a default config
	Option func(c *config)
)

// Lifecycle misuse is reported, not ignored, so tests notice leaked ports
var (
	ErrAlreadyRunning = errors.New("server is already running")
	ErrNotRunning     = errors.New("server is not running")
)

// PendingRequestsLeftError reports one-shot rules that were registered but
// never consumed by a request
type PendingRequestsLeftError struct {
	Rules []*Rule
}

// Error implements the error interface
func (e *PendingRequestsLeftError) Error() string {
	ids := make([]string, 0, len(e.Rules))
	for _, rule := range e.Rules {
		ids = append(ids, rule.id)
	}

	return fmt.Sprintf("%d pending request expectation(s) left: %s", len(e.Rules), strings.Join(ids, ", "))
}

// New returns a new server with a default setup on 127.0.0.1:8080 and the
// config endpoints mounted under /httpsrv
func New(options ...Option) *Server {
	c := &config{
		port:           8080,
		host:           "127.0.0.1",
		configBasePath: "/httpsrv",
		logger:         logrus.StandardLogger(),
	}

	for _, applyOption := range options {
		applyOption(c)
	}

	app := fiber.New(&fiber.Settings{
		ServerHeader:          "Httpsrv",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:            app,
		logger:         c.logger,
		host:           c.host,
		port:           c.port,
		configBasePath: c.configBasePath,
		rules:          newStore(),
	}

	if s.configBasePath != "" {
		s.initConfigEndpoints()
	}

	// One catch-all handler for every method and path; the method check is
	// part of expectation matching.
	app.Use(s.dispatch)

	return s
}

// WithLogger overrides the default logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithHost sets the host
func WithHost(host string) Option {
	return func(c *config) {
		c.host = host
	}
}

// WithPort sets the port the server listens on
func WithPort(port int) Option {
	return func(c *config) {
		c.port = port
	}
}

// WithConfigBasePath sets the base path to post and look up rule sets.
// An empty path disables the config endpoints entirely.
func WithConfigBasePath(basePath string) Option {
	return func(c *config) {
		c.configBasePath = basePath
	}
}

// On registers a one-shot expectation: the first matching request is served
// the rule's response and the rule is consumed. An empty method or path
// matches any.
func (s *Server) On(method, path string, opts ...ExpectOption) *Rule {
	return s.register(method, path, false, opts)
}

// Always registers a standing expectation answering any number of matching
// requests. Standing rules are only dropped by Reset.
func (s *Server) Always(method, path string, opts ...ExpectOption) *Rule {
	return s.register(method, path, true, opts)
}

func (s *Server) register(method, path string, always bool, opts []ExpectOption) *Rule {
	rule := newRule(newExpectation(method, path, opts...))
	s.rules.add(rule, always)

	s.logger.WithFields(logrus.Fields{
		"rule":   rule.id,
		"method": method,
		"path":   path,
		"always": always,
	}).Debug("registered")

	return rule
}

// AddRules registers every rule of a declarative set and returns the created
// handles in set order
func (s *Server) AddRules(set spec.RuleSet) []*Rule {
	rules := make([]*Rule, 0, len(set.Rules))

	for _, rs := range set.Rules {
		var opts []ExpectOption
		if len(rs.Headers) > 0 {
			opts = append(opts, WithHeaders(rs.Headers))
		}
		if rs.Text != "" {
			opts = append(opts, WithText(rs.Text))
		}
		if rs.JSON != nil {
			opts = append(opts, WithJSON(rs.JSON))
		}
		if len(rs.Form) > 0 {
			opts = append(opts, WithForm(rs.Form))
		}

		var rule *Rule
		if rs.Always {
			rule = s.Always(rs.Method, rs.Path, opts...)
		} else {
			rule = s.On(rs.Method, rs.Path, opts...)
		}

		if rs.Response.Status != 0 {
			rule.Status(rs.Response.Status)
		}
		if len(rs.Response.Headers) > 0 {
			rule.Headers(rs.Response.Headers)
		}
		if rs.Response.JSON != nil {
			rule.JSON(rs.Response.JSON)
		} else if rs.Response.Body != "" {
			rule.Text(rs.Response.Body)
		}

		rules = append(rules, rule)
	}

	return rules
}

// Reset drops every registered rule, pending and standing. Valid whether or
// not the server is running; useful in teardown instead of a restart.
func (s *Server) Reset() {
	s.rules.reset()
}

// AssertNoPending returns a *PendingRequestsLeftError if the given rule is
// still waiting for a request, or, when called with no arguments, if any
// one-shot rule is. Standing rules are exempt: they are pending by design.
func (s *Server) AssertNoPending(target ...*Rule) error {
	if len(target) > 0 {
		for _, rule := range target {
			if s.rules.stillPending(rule) {
				return &PendingRequestsLeftError{Rules: []*Rule{rule}}
			}
		}

		return nil
	}

	if pending := s.rules.pendingRules(); len(pending) > 0 {
		return &PendingRequestsLeftError{Rules: pending}
	}

	return nil
}

// Start begins accepting requests on the configured host and port. It
// returns once the listener is accepting connections, or with the error
// that kept it from binding. Starting a running server is an error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	errc := make(chan error, 1)

	go func() {
		errc <- s.app.Listen(addr)
	}()

	s.logger.WithFields(logrus.Fields{"host": s.host, "port": s.port}).Info("starting")

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-errc:
			s.setStopped()
			if err == nil {
				err = fmt.Errorf("listener on %s closed", addr)
			}
			return err
		default:
		}

		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			// the dial can reach whoever already holds the port, so give a
			// failed bind a moment to surface before declaring the start good
			select {
			case listenErr := <-errc:
				s.setStopped()
				if listenErr == nil {
					listenErr = fmt.Errorf("listener on %s closed", addr)
				}
				return listenErr
			case <-time.After(20 * time.Millisecond):
			}
			return nil
		}

		if time.Now().After(deadline) {
			s.setStopped()
			return fmt.Errorf("server did not start on %s", addr)
		}

		time.Sleep(5 * time.Millisecond)
	}
}

// Stop gracefully shuts the server down, waiting for in-flight requests to
// finish. Stopping a stopped server is an error. The rule store survives a
// stop untouched.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	if shutdownErr := s.app.Shutdown(); shutdownErr != nil {
		return fmt.Errorf("failed to shutdown app %w", shutdownErr)
	}
	s.running = false

	return nil
}

func (s *Server) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// dispatch decodes the incoming request, consumes the first matching rule
// and writes its response. The store removes a matching one-shot rule inside
// findAndConsume, strictly before anything is written back.
func (s *Server) dispatch(c *fiber.Ctx) {
	req := decodeRequest(c)

	rule, ok := s.rules.findAndConsume(req)
	if !ok {
		s.logger.WithFields(logrus.Fields{
			"method": req.method,
			"path":   req.path,
		}).Error("no matching rule")

		c.Status(http.StatusInternalServerError)
		c.SendString(fmt.Sprintf("no matching rule found for %s %s body %q", req.method, req.path, req.body))
		return
	}

	s.logger.WithFields(logrus.Fields{
		"rule":   rule.id,
		"method": req.method,
		"path":   req.path,
	}).Debug("serving")

	res := rule.response()
	c.Status(res.status)
	for name, value := range res.headers {
		c.Set(name, value)
	}
	if len(res.body) > 0 {
		c.SendBytes(res.body)
	}
}

func (s *Server) initConfigEndpoints() {
	s.logger.WithFields(logrus.Fields{
		http.MethodPost: s.configBasePath,
		http.MethodGet:  s.configBasePath,
	}).Debug("config endpoints")

	s.app.Post(s.configBasePath, func(c *fiber.Ctx) {
		set, err := spec.Load(strings.NewReader(c.Body()))
		if err != nil {
			s.logger.WithError(err).Error("failed to decode rule set")
			c.SendStatus(http.StatusBadRequest)
			return
		}

		rules := s.AddRules(set)

		ids := make([]string, 0, len(rules))
		for _, rule := range rules {
			ids = append(ids, rule.id)
		}

		c.Status(http.StatusCreated)
		if err := encode.JSONIndented(ids, c.Fasthttp.Response.BodyWriter()); err != nil {
			s.logger.WithError(err).Error("failed to encode response")
			c.SendStatus(http.StatusInternalServerError)
		}
	})

	s.app.Get(s.configBasePath, func(c *fiber.Ctx) {
		ids := []string{}
		for _, rule := range s.rules.pendingRules() {
			ids = append(ids, rule.id)
		}

		if err := encode.JSONIndented(ids, c.Fasthttp.Response.BodyWriter()); err != nil {
			s.logger.WithError(err).Error("failed to encode response")
			c.SendStatus(http.StatusInternalServerError)
		}
	})

	s.app.Delete(s.configBasePath, func(c *fiber.Ctx) {
		s.Reset()
		c.SendStatus(http.StatusNoContent)
	})
}
