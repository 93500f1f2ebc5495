package httpsrv

import "sync"

// store holds the two ordered rule collections: pending rules are consumed
// by their first match, standing rules answer any number of requests. Every
// access is serialized by one mutex; in particular a lookup that consumes a
// pending rule is a single critical section, so two racing requests can
// never both be served by the same one-shot rule.
type store struct {
	mu       sync.Mutex
	pending  []*Rule
	standing []*Rule
}

func newStore() *store {
	return &store{}
}

func (s *store) add(rule *Rule, always bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if always {
		s.standing = append(s.standing, rule)
	} else {
		s.pending = append(s.pending, rule)
	}
}

// findAndConsume returns the earliest registered rule matching req, checking
// pending rules before standing ones. A matching pending rule is removed
// before the method returns.
func (s *store) findAndConsume(req *request) (*Rule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rule := range s.pending {
		if rule.expect.matches(req) {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return rule, true
		}
	}

	for _, rule := range s.standing {
		if rule.expect.matches(req) {
			return rule, true
		}
	}

	return nil, false
}

// reset drops every rule. Rules held by the caller stay valid objects; they
// are just no longer registered.
func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = nil
	s.standing = nil
}

func (s *store) pendingRules() []*Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := make([]*Rule, len(s.pending))
	copy(rules, s.pending)

	return rules
}

func (s *store) stillPending(target *Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rule := range s.pending {
		if rule == target {
			return true
		}
	}

	return false
}
