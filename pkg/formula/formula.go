package formula

import (
	"sync"
)

// DefaultCacheSize bounds the number of compiled formulas a Parser keeps
const DefaultCacheSize = 4096

// Parser compiles and evaluates formulas, caching compiled programs by source text
type Parser struct {
	mu       sync.RWMutex
	cache    map[string]*Program
	capacity int
}

// NewParser creates a new formula parser. A non-positive capacity uses DefaultCacheSize.
func NewParser(capacity int) *Parser {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Parser{
		cache:    make(map[string]*Program),
		capacity: capacity,
	}
}

// Compile returns the compiled program for source, parsing it at most once
func (p *Parser) Compile(source string) (*Program, error) {
	p.mu.RLock()
	if program, ok := p.cache[source]; ok {
		p.mu.RUnlock()
		return program, nil
	}
	p.mu.RUnlock()

	program, err := Parse(source)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another goroutine may have compiled it meanwhile
	if cached, ok := p.cache[source]; ok {
		return cached, nil
	}
	if len(p.cache) >= p.capacity {
		p.cache = make(map[string]*Program)
	}
	p.cache[source] = program
	return program, nil
}

// Evaluate compiles (or reuses) source and evaluates it against env
func (p *Parser) Evaluate(source string, env Env, prices PriceFunc) (Value, error) {
	program, err := p.Compile(source)
	if err != nil {
		return Value{}, err
	}
	return program.Eval(env, prices)
}

// ValidateExpression reports whether source parses, without evaluating it
func (p *Parser) ValidateExpression(source string) error {
	_, err := p.Compile(source)
	return err
}

// Len returns the number of cached programs
func (p *Parser) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// ClearCache drops every cached program
func (p *Parser) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*Program)
}

// DefaultParser is the global parser instance
var DefaultParser = NewParser(DefaultCacheSize)

// Evaluate is a convenience function using the default parser
func Evaluate(source string, env Env, prices PriceFunc) (Value, error) {
	return DefaultParser.Evaluate(source, env, prices)
}
