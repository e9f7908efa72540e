package endpointpool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/ClipFinance/settlement-lib/connectionmonitor"
	"github.com/ClipFinance/settlement-lib/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultProbeTimeout bounds a single endpoint probe.
const DefaultProbeTimeout = 3 * time.Second

// Prober checks whether one endpoint of a role answers.
type Prober interface {
	Probe(ctx context.Context, endpoint types.Endpoint) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, endpoint types.Endpoint) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, endpoint types.Endpoint) error {
	return f(ctx, endpoint)
}

// Options tunes the pool.
type Options struct {
	ProbeTimeout time.Duration
	Monitor      connectionmonitor.Options
	Metrics      *metrics.Metrics
}

type endpointState struct {
	endpoint  types.Endpoint
	demotions int
	live      bool
}

// Pool tracks interchangeable endpoints per role and ranks them by
// (demotions, not verified live, configured rank). Selection never blocks and
// falls back to the first configured endpoint until something is verified.
type Pool struct {
	mu       sync.RWMutex
	states   map[types.EndpointRole][]*endpointState
	probers  map[types.EndpointRole]Prober
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	monitor  connectionmonitor.ConnectionMonitor
	cancel   context.CancelFunc
	upgrades sync.WaitGroup
}

// New creates a pool over the given endpoints. Endpoints of a role keep the
// order of their Rank.
//
// Parameters:
// - endpoints: the configured endpoints of every role.
// - logger: the logger for logging purposes.
// - opts: probe timeout, monitor timings and metrics.
//
// Returns:
// - *Pool: the new pool.
func New(endpoints []types.Endpoint, logger *logrus.Logger, opts Options) *Pool {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}

	p := &Pool{
		states:  make(map[types.EndpointRole][]*endpointState),
		probers: make(map[types.EndpointRole]Prober),
		logger:  logger,
		metrics: opts.Metrics,
		timeout: opts.ProbeTimeout,
	}
	for _, ep := range endpoints {
		p.states[ep.Role] = append(p.states[ep.Role], &endpointState{endpoint: ep})
	}
	for _, states := range p.states {
		sort.SliceStable(states, func(i, j int) bool {
			return states[i].endpoint.Rank < states[j].endpoint.Rank
		})
	}
	p.monitor = connectionmonitor.NewConnectionMonitor(p, logger, "endpoint-pool", opts.Monitor)
	return p
}

// RegisterProber sets the prober used for endpoints of role.
func (p *Pool) RegisterProber(role types.EndpointRole, prober Prober) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probers[role] = prober
}

// Select returns the currently preferred endpoint of role, or a zero
// Endpoint when the role has none configured.
func (p *Pool) Select(role types.EndpointRole) types.Endpoint {
	candidates := p.Candidates(role)
	if len(candidates) == 0 {
		return types.Endpoint{}
	}
	return candidates[0]
}

// Candidates returns every endpoint of role in preference order.
func (p *Pool) Candidates(role types.EndpointRole) []types.Endpoint {
	p.mu.RLock()
	states := make([]endpointState, 0, len(p.states[role]))
	for _, s := range p.states[role] {
		states = append(states, *s)
	}
	p.mu.RUnlock()

	sort.SliceStable(states, func(i, j int) bool {
		a, b := states[i], states[j]
		if a.demotions != b.demotions {
			return a.demotions < b.demotions
		}
		if a.live != b.live {
			return a.live
		}
		return a.endpoint.Rank < b.endpoint.Rank
	})

	out := make([]types.Endpoint, len(states))
	for i, s := range states {
		out[i] = s.endpoint
	}
	return out
}

// Demote pushes an endpoint that just failed behind its peers. Demotions
// only accumulate.
func (p *Pool) Demote(endpoint types.Endpoint) {
	p.mu.Lock()
	s := p.find(endpoint)
	if s != nil {
		s.demotions++
		s.live = false
	}
	p.mu.Unlock()

	if s != nil {
		p.logger.WithFields(logrus.Fields{
			"role":     endpoint.Role,
			"endpoint": endpoint.URL,
		}).Warn("Endpoint demoted")
	}
}

// Probe checks one endpoint with the role's prober under the probe timeout.
// Failures are logged and counted, never returned.
func (p *Pool) Probe(ctx context.Context, endpoint types.Endpoint) bool {
	p.mu.RLock()
	prober := p.probers[endpoint.Role]
	p.mu.RUnlock()
	if prober == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := prober.Probe(probeCtx, endpoint)

	p.mu.Lock()
	if s := p.find(endpoint); s != nil {
		s.live = err == nil
	}
	p.mu.Unlock()

	if err != nil {
		p.metrics.ProbeFailed(endpoint.Role.String())
		p.logger.WithFields(logrus.Fields{
			"role":     endpoint.Role,
			"endpoint": endpoint.URL,
			"error":    err,
		}).Warn("Endpoint probe failed")
		return false
	}
	return true
}

// Start probes every role in the background, upgrading to the first
// verified-live endpoint in configured order, and then starts the health
// monitor. Callers never wait for the probes.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("endpoint pool already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.upgrades.Add(1)
	go func() {
		defer p.upgrades.Done()
		if err := p.Reconnect(runCtx); err != nil {
			p.logger.WithError(err).Warn("Initial endpoint probe found no live endpoint")
		}
	}()

	return p.monitor.Start(runCtx)
}

// Stop ends background probing.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	p.monitor.Stop()
	cancel()
	p.upgrades.Wait()
}

// CheckConnection probes the selected endpoint of every probed role.
func (p *Pool) CheckConnection(ctx context.Context) error {
	for _, role := range p.probedRoles() {
		selected := p.Select(role)
		if selected.IsZero() {
			continue
		}
		if !p.Probe(ctx, selected) {
			return errors.Errorf("%s endpoint %s is not responding", role, selected.URL)
		}
	}
	return nil
}

// Reconnect probes the endpoints of every probed role in configured order
// and stops at the first live one per role.
func (p *Pool) Reconnect(ctx context.Context) error {
	var failed []types.EndpointRole
	for _, role := range p.probedRoles() {
		found := false
		for _, ep := range p.configured(role) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.Probe(ctx, ep) {
				p.logger.WithFields(logrus.Fields{
					"role":     role,
					"endpoint": ep.URL,
				}).Info("Endpoint verified live")
				found = true
				break
			}
		}
		if !found {
			failed = append(failed, role)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("no live endpoint for roles %v", failed)
	}
	return nil
}

func (p *Pool) probedRoles() []types.EndpointRole {
	p.mu.RLock()
	defer p.mu.RUnlock()

	roles := make([]types.EndpointRole, 0, len(p.probers))
	for role := range p.probers {
		if len(p.states[role]) > 0 {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

func (p *Pool) configured(role types.EndpointRole) []types.Endpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.Endpoint, len(p.states[role]))
	for i, s := range p.states[role] {
		out[i] = s.endpoint
	}
	return out
}

// find must be called with p.mu held.
func (p *Pool) find(endpoint types.Endpoint) *endpointState {
	for _, s := range p.states[endpoint.Role] {
		if s.endpoint.URL == endpoint.URL {
			return s
		}
	}
	return nil
}
