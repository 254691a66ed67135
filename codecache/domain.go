package codecache

import (
	"fmt"
	"sync"

	"github.com/kestreljs/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Installation domains
// ---------------------------------------------------------------------------

// DomainState is the lifecycle state of an installation domain.
type DomainState int

const (
	// DomainFresh: created, nothing installed yet.
	DomainFresh DomainState = iota
	// DomainInUse: serving installs, below the reuse ceiling.
	DomainInUse
	// DomainRetired: reuse ceiling reached; a fresh domain replaces it.
	DomainRetired
	// DomainReusable: anonymous domain, valid for repeated on-demand
	// compilation of the same source.
	DomainReusable
)

func (s DomainState) String() string {
	switch s {
	case DomainFresh:
		return "fresh"
	case DomainInUse:
		return "in-use"
	case DomainRetired:
		return "retired"
	case DomainReusable:
		return "reusable"
	default:
		return "?"
	}
}

// LoadedUnit is one code unit decoded into a domain.
type LoadedUnit struct {
	Name   string
	Chunk  *vm.Chunk
	domain Domain
}

// Domain returns the installation domain holding the unit.
func (u *LoadedUnit) Domain() Domain { return u.domain }

// Domain is an isolated namespace generated code is loaded into and
// invoked from.
type Domain interface {
	// Name identifies the domain; rotation is observable as a change of
	// the returned domain's name.
	Name() string

	// State reports the domain's lifecycle state.
	State() DomainState

	// CanInstall reports whether the domain can accept n
	// mutually-referencing units without exceeding its reuse policy.
	CanInstall(n int) bool

	// Install decodes one unit's code bytes into the domain.
	Install(unitName string, code []byte) (*LoadedUnit, error)

	// Initialize constructs a function object for every entry
	// descriptor, binds the constant pool's placeholders to them, and
	// returns the main unit's function. All units must live in
	// compatible domains; merging unrelated origins is unrecoverable
	// and surfaces as a type error.
	Initialize(units []*LoadedUnit, source *Source, pool *vm.ConstPool,
		entries map[int]vm.EntryDescriptor, mainUnit string) (*vm.FunctionTemplate, error)

	// CompatibleWith reports whether two domains share an engine
	// context and code-origin tag, so a compilation job can request an
	// installer compatible with an existing one.
	CompatibleWith(other Domain) bool

	context() *vm.Context
	originTag() string
}

// initialize is the shared Initialize implementation.
func initialize(self Domain, units []*LoadedUnit, _ *Source, pool *vm.ConstPool,
	entries map[int]vm.EntryDescriptor, mainUnit string) (*vm.FunctionTemplate, error) {

	byName := make(map[string]*LoadedUnit, len(units))
	for _, u := range units {
		if !self.CompatibleWith(u.domain) {
			return nil, vm.NewTypeError(
				"no installation domain can see units from both %q and %q", self.Name(), u.domain.Name())
		}
		byName[u.Name] = u
	}

	var main *vm.FunctionTemplate
	for id, entry := range entries {
		u, ok := byName[entry.UnitName]
		if !ok {
			return nil, fmt.Errorf("%w: entry %d references unloaded unit %q", ErrCorruptUnit, id, entry.UnitName)
		}
		fn := vm.NewFunctionTemplate(entry.Name, entry.NumParams, u.Chunk, pool)
		pool.Bind(entry.FuncID, fn)
		if entry.UnitName == mainUnit {
			main = fn
		}
	}
	if main == nil {
		return nil, fmt.Errorf("%w: no entry for main unit %q", ErrCorruptUnit, mainUnit)
	}
	return main, nil
}

// ---------------------------------------------------------------------------
// Named domains
// ---------------------------------------------------------------------------

// namedDomain can install multiple mutually-referencing units and is
// reused across compilations up to a ceiling of installs or generated
// code bytes, whichever comes first.
type namedDomain struct {
	ctx  *vm.Context
	name string

	mu          sync.Mutex
	state       DomainState
	installs    int
	bytes       int64
	maxInstalls int
	maxBytes    int64
}

func newNamedDomain(ctx *vm.Context, name string, maxInstalls int, maxBytes int64) *namedDomain {
	return &namedDomain{
		ctx:         ctx,
		name:        name,
		state:       DomainFresh,
		maxInstalls: maxInstalls,
		maxBytes:    maxBytes,
	}
}

func (d *namedDomain) Name() string { return d.name }

func (d *namedDomain) State() DomainState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *namedDomain) CanInstall(n int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == DomainRetired {
		return false
	}
	return d.installs+n <= d.maxInstalls && d.bytes < d.maxBytes
}

func (d *namedDomain) Install(unitName string, code []byte) (*LoadedUnit, error) {
	d.mu.Lock()
	if d.state == DomainRetired {
		d.mu.Unlock()
		return nil, fmt.Errorf("codecache: domain %q is retired", d.name)
	}
	d.state = DomainInUse
	d.installs++
	d.bytes += int64(len(code))
	if d.installs >= d.maxInstalls || d.bytes >= d.maxBytes {
		d.state = DomainRetired
	}
	d.mu.Unlock()

	chunk, err := vm.DecodeChunk(code)
	if err != nil {
		return nil, fmt.Errorf("codecache: install %q into %q: %w", unitName, d.name, err)
	}
	return &LoadedUnit{Name: unitName, Chunk: chunk, domain: d}, nil
}

func (d *namedDomain) Initialize(units []*LoadedUnit, source *Source, pool *vm.ConstPool,
	entries map[int]vm.EntryDescriptor, mainUnit string) (*vm.FunctionTemplate, error) {
	return initialize(d, units, source, pool, entries, mainUnit)
}

func (d *namedDomain) CompatibleWith(other Domain) bool {
	return other != nil && d.ctx == other.context() && d.originTag() == other.originTag()
}

func (d *namedDomain) context() *vm.Context { return d.ctx }
func (d *namedDomain) originTag() string    { return d.ctx.Origin() }

// ---------------------------------------------------------------------------
// Anonymous domains
// ---------------------------------------------------------------------------

// anonDomain is the lightweight domain for a single source: it stays
// valid for repeated on-demand compilation of that source but cannot
// host multiple mutually-referencing units.
type anonDomain struct {
	ctx      *vm.Context
	name     string
	sourceID string
}

func newAnonDomain(ctx *vm.Context, sourceID string, seq int) *anonDomain {
	return &anonDomain{ctx: ctx, name: fmt.Sprintf("anon-%d", seq), sourceID: sourceID}
}

func (d *anonDomain) Name() string       { return d.name }
func (d *anonDomain) State() DomainState { return DomainReusable }

// CanInstall rejects more than one unit: anonymous domains have no
// multi-unit capability.
func (d *anonDomain) CanInstall(n int) bool { return n <= 1 }

func (d *anonDomain) Install(unitName string, code []byte) (*LoadedUnit, error) {
	chunk, err := vm.DecodeChunk(code)
	if err != nil {
		return nil, fmt.Errorf("codecache: install %q into %q: %w", unitName, d.name, err)
	}
	return &LoadedUnit{Name: unitName, Chunk: chunk, domain: d}, nil
}

func (d *anonDomain) Initialize(units []*LoadedUnit, source *Source, pool *vm.ConstPool,
	entries map[int]vm.EntryDescriptor, mainUnit string) (*vm.FunctionTemplate, error) {
	return initialize(d, units, source, pool, entries, mainUnit)
}

func (d *anonDomain) CompatibleWith(other Domain) bool {
	return other != nil && d.ctx == other.context() && d.originTag() == other.originTag()
}

func (d *anonDomain) context() *vm.Context { return d.ctx }
func (d *anonDomain) originTag() string    { return d.ctx.Origin() }

// ---------------------------------------------------------------------------
// DomainManager
// ---------------------------------------------------------------------------

// DomainManager hands out installation domains: a rotating current named
// domain plus per-source anonymous domains.
type DomainManager struct {
	ctx         *vm.Context
	maxInstalls int
	maxBytes    int64

	mu      sync.Mutex
	current *namedDomain
	seq     int
	anonSeq int
	anons   map[string]*anonDomain
}

// NewDomainManager creates a manager with the given named-domain reuse
// ceiling.
func NewDomainManager(ctx *vm.Context, maxInstalls int, maxBytes int64) *DomainManager {
	return &DomainManager{
		ctx:         ctx,
		maxInstalls: maxInstalls,
		maxBytes:    maxBytes,
		anons:       make(map[string]*anonDomain),
	}
}

// Named returns a named domain able to accept unitCount units, rotating
// to a fresh one when the current domain's reuse ceiling is reached.
// Retirement is never user-visible, only an internal rotation.
func (m *DomainManager) Named(unitCount int) Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || !m.current.CanInstall(unitCount) {
		m.seq++
		m.current = newNamedDomain(m.ctx, fmt.Sprintf("kestrel$domain%d", m.seq), m.maxInstalls, m.maxBytes)
	}
	return m.current
}

// Anonymous returns the reusable lightweight domain for the source,
// creating it on first request.
func (m *DomainManager) Anonymous(source *Source) Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.anons[source.ID()]; ok {
		return d
	}
	m.anonSeq++
	d := newAnonDomain(m.ctx, source.ID(), m.anonSeq)
	m.anons[source.ID()] = d
	return d
}
