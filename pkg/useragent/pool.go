package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// DefaultAgents is a set of current desktop browser User-Agents.
var DefaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Pool hands out User-Agents, either round-robin or at random.
type Pool struct {
	agents  []string
	random  bool
	counter atomic.Uint64
}

// NewPool creates a pool over agents. Blank entries are dropped and an empty
// list falls back to DefaultAgents.
func NewPool(agents []string, random bool) *Pool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultAgents...)
	}
	return &Pool{agents: cleaned, random: random}
}

// Next returns the User-Agent for the next request.
func (p *Pool) Next() string {
	if len(p.agents) == 0 {
		return ""
	}
	if p.random {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.agents))))
		if err == nil {
			return p.agents[n.Int64()]
		}
	}
	idx := p.counter.Add(1) - 1
	return p.agents[idx%uint64(len(p.agents))]
}

// Len reports the number of agents in the pool.
func (p *Pool) Len() int {
	return len(p.agents)
}
