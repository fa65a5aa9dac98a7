package cluster

import (
	"time"

	"github.com/alvaro7rlz/cql-go/balancer"
	"github.com/alvaro7rlz/cql-go/frame"
	"github.com/alvaro7rlz/cql-go/node"
)

// Config holds a Cluster's tunables. Use New with Option values rather
// than constructing Config directly; the zero Config is not ready to use.
type Config struct {
	defaultPort          int
	protocolVersionMax   frame.Version
	loadBalancerInterval time.Duration
	loadBalancer         balancer.Balancer
	credentials          *node.Credentials
	startupOptions       map[string]string
}

func defaultConfig() Config {
	return Config{
		defaultPort:          9042,
		protocolVersionMax:   frame.MaxSupportedVersion,
		loadBalancerInterval: 1 * time.Second,
		loadBalancer:         balancer.NewRoundRobin(),
		startupOptions:       map[string]string{"CQL_VERSION": "3.0.0"},
	}
}

// Option configures a Cluster at construction time.
type Option func(*Config)

// WithDefaultPort sets the port used for contact points and discovered
// peers that don't specify one explicitly.
func WithDefaultPort(port int) Option {
	return func(c *Config) { c.defaultPort = port }
}

// WithMaxProtocolVersion caps the protocol version negotiation will try,
// counting down to frame.MinSupportedVersion.
func WithMaxProtocolVersion(v frame.Version) Option {
	return func(c *Config) { c.protocolVersionMax = v }
}

// WithLoadBalancerInterval sets how often the background health-ping task
// refreshes the active balancer's latency samples.
func WithLoadBalancerInterval(d time.Duration) Option {
	return func(c *Config) { c.loadBalancerInterval = d }
}

// WithLoadBalancerPolicy sets the initial balancer. SetLoadBalancing
// changes it after construction.
func WithLoadBalancerPolicy(b balancer.Balancer) Option {
	return func(c *Config) { c.loadBalancer = b }
}

// WithCredentials supplies the username/password sent if a contacted node
// challenges with AUTHENTICATE.
func WithCredentials(creds node.Credentials) Option {
	return func(c *Config) { c.credentials = &creds }
}

// WithStartupOptions overrides the STARTUP option map sent to every node
// (default: {"CQL_VERSION": "3.0.0"}).
func WithStartupOptions(opts map[string]string) Option {
	return func(c *Config) { c.startupOptions = opts }
}
