package codecache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/kestreljs/kestrel/compiler"
	"github.com/kestreljs/kestrel/vm"
)

var log = commonlog.GetLogger("kestrel.codecache")

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Params configures a compilation pipeline.
type Params struct {
	// MaxInstalls and MaxBytes bound how much a named domain is reused
	// before rotation.
	MaxInstalls int
	MaxBytes    int64

	// StrongRecency is how many recently executed programs stay
	// strongly referenced; older entries degrade to weak references.
	StrongRecency int

	// AllowAnonymous permits lightweight single-unit domains for small
	// sources. AnonymousMaxSource is the source-size ceiling in bytes.
	AllowAnonymous     bool
	AnonymousMaxSource int

	// Lazy defers full compilation of sub-functions to first call. The
	// current back end compiles eagerly, so the flag only gates
	// persistence interplay with optimistic types.
	Lazy bool
}

// DefaultParams returns the pipeline defaults.
func DefaultParams() Params {
	return Params{
		MaxInstalls:        10,
		MaxBytes:           200_000,
		StrongRecency:      8,
		AllowAnonymous:     true,
		AnonymousMaxSource: 4096,
	}
}

// Pipeline owns the whole path from source text to callable program:
// recency cache, persisted-unit store, front end, and installation.
type Pipeline struct {
	ctx     *vm.Context
	params  Params
	store   Store // nil disables persistence
	domains *DomainManager
	recency *recencyList

	// compileMu serializes compilations engine-wide. The interpreter
	// itself runs outside the lock.
	compileMu sync.Mutex

	statsMu sync.Mutex
	stats   PipelineStats
}

// PipelineStats counts pipeline outcomes.
type PipelineStats struct {
	RecencyHits   int
	PersistedHits int
	FreshCompiles int
	CorruptUnits  int
}

// NewPipeline creates a pipeline over a runtime context. A nil store
// disables persistence.
func NewPipeline(ctx *vm.Context, params Params, store Store) *Pipeline {
	return &Pipeline{
		ctx:     ctx,
		params:  params,
		store:   store,
		domains: NewDomainManager(ctx, params.MaxInstalls, params.MaxBytes),
		recency: newRecencyList(params.StrongRecency),
	}
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() PipelineStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline) count(f func(*PipelineStats)) {
	p.statsMu.Lock()
	f(&p.stats)
	p.statsMu.Unlock()
}

// CheckSyntax runs the front end only. Parse-only compilations never
// touch the persisted-unit store.
func (p *Pipeline) CheckSyntax(source *Source) error {
	defer p.ctx.Timings.Measure("frontend")()
	sink := compiler.NewErrorSink()
	compiler.Parse(source.Name, source.Text, sink)
	if sink.HasErrors() {
		return sink.First()
	}
	return nil
}

// Compile turns source text into a loaded, callable program. Equal
// source text reuses the recency cache, then the persisted-unit store,
// and only then the compiler; a given text is compiled by the back end
// at most once per store lifetime.
func (p *Pipeline) Compile(source *Source) (*LoadedProgram, error) {
	if prog, ok := p.recency.Lookup(source.ID()); ok {
		p.count(func(s *PipelineStats) { s.RecencyHits++ })
		return prog, nil
	}

	p.compileMu.Lock()
	defer p.compileMu.Unlock()

	// Another compilation may have landed while we waited for the lock.
	if prog, ok := p.recency.Lookup(source.ID()); ok {
		p.count(func(s *PipelineStats) { s.RecencyHits++ })
		return prog, nil
	}

	unit, fromStore, err := p.obtainUnit(source)
	if err != nil {
		return nil, err
	}

	prog, err := p.install(source, unit)
	if err != nil && fromStore {
		// A persisted unit that validated but whose code bytes fail to
		// install is as corrupt as one that fails decoding: evict it and
		// fall back to a fresh compilation.
		log.Warningf("evicting persisted unit that failed to install for %s: %v", source.Name, err)
		p.count(func(s *PipelineStats) { s.CorruptUnits++ })
		if derr := p.store.Delete(source.ID(), CacheKeyScript); derr != nil {
			log.Errorf("evicting %s: %v", source.Name, derr)
		}
		unit, err = p.compileFresh(source)
		if err != nil {
			return nil, err
		}
		fromStore = false
		prog, err = p.install(source, unit)
	}
	if err != nil {
		return nil, err
	}

	if !fromStore && p.persistApplicable() {
		p.persist(source, unit)
	}

	p.recency.Touch(source.ID(), prog)
	return prog, nil
}

// obtainUnit loads a persisted unit for the source or compiles a fresh
// one. The bool reports whether the unit came from the store. The load
// is gated the same way as the save: a configuration that would not
// persist its own compilations does not consume persisted ones either.
func (p *Pipeline) obtainUnit(source *Source) (*PersistedUnit, bool, error) {
	if p.persistApplicable() {
		data, err := p.store.Load(source.ID(), CacheKeyScript)
		switch {
		case err == nil:
			unit, uerr := UnmarshalPersistedUnit(data)
			if uerr == nil {
				p.count(func(s *PipelineStats) { s.PersistedHits++ })
				log.Debugf("reusing persisted unit %s for %s", unit.CompilationID, source.Name)
				return unit, true, nil
			}
			// A corrupt record is evicted and the source recompiled.
			log.Warningf("evicting corrupt persisted unit for %s: %v", source.Name, uerr)
			p.count(func(s *PipelineStats) { s.CorruptUnits++ })
			if derr := p.store.Delete(source.ID(), CacheKeyScript); derr != nil {
				log.Errorf("evicting %s: %v", source.Name, derr)
			}
		case errors.Is(err, ErrNotFound):
			// cold cache
		default:
			log.Errorf("loading persisted unit for %s: %v", source.Name, err)
		}
	}

	unit, err := p.compileFresh(source)
	if err != nil {
		return nil, false, err
	}
	return unit, false, nil
}

// compileFresh runs front end and back end over the source.
func (p *Pipeline) compileFresh(source *Source) (*PersistedUnit, error) {
	stop := p.ctx.Timings.Measure("frontend")
	sink := compiler.NewErrorSink()
	prog := compiler.Parse(source.Name, source.Text, sink)
	stop()
	if sink.HasErrors() {
		return nil, sink.First()
	}

	stop = p.ctx.Timings.Measure("backend")
	compiled, err := compiler.CompileToUnit(prog)
	stop()
	if err != nil {
		return nil, err
	}

	p.count(func(s *PipelineStats) { s.FreshCompiles++ })
	return &PersistedUnit{
		CompilationID: uuid.NewString(),
		MainUnit:      compiled.MainUnit,
		Code:          compiled.Code,
		Entries:       compiled.Entries,
		Pool:          compiled.Pool,
	}, nil
}

// persistApplicable reports whether fresh compilations should be saved.
// Optimistic-type layouts bake representation assumptions into eager
// code, so they persist only under lazy compilation where re-profiling
// happens per run.
func (p *Pipeline) persistApplicable() bool {
	if p.store == nil {
		return false
	}
	if p.ctx.OptimisticTypes && !p.params.Lazy {
		return false
	}
	return true
}

func (p *Pipeline) persist(source *Source, unit *PersistedUnit) {
	data, err := unit.Marshal()
	if err != nil {
		log.Errorf("encoding unit for %s: %v", source.Name, err)
		return
	}
	if err := p.store.Save(source.ID(), CacheKeyScript, data); err != nil {
		log.Errorf("persisting unit for %s: %v", source.Name, err)
		return
	}
	log.Debugf("persisted unit %s for %s (%d bytes)", unit.CompilationID, source.Name, len(data))
}

// install loads the unit's code into a domain and binds its functions.
func (p *Pipeline) install(source *Source, unit *PersistedUnit) (*LoadedProgram, error) {
	defer p.ctx.Timings.Measure("install")()

	domain := p.pickDomain(source, len(unit.Code))

	loaded := make([]*LoadedUnit, 0, len(unit.Code))
	for name, code := range unit.Code {
		lu, err := domain.Install(name, code)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, lu)
	}

	pool := vm.NewConstPool(unit.Pool)
	main, err := domain.Initialize(loaded, source, pool, unit.Entries, unit.MainUnit)
	if err != nil {
		return nil, err
	}

	return &LoadedProgram{
		Source:        source,
		CompilationID: unit.CompilationID,
		Domain:        domain,
		main:          main,
		pool:          pool,
	}, nil
}

// pickDomain prefers the source's anonymous domain for small single-unit
// programs and falls back to the rotating named domain transparently.
// Persisted and eager compilations always land in a named domain.
func (p *Pipeline) pickDomain(source *Source, unitCount int) Domain {
	if p.anonymousEligible(source) {
		d := p.domains.Anonymous(source)
		if d.CanInstall(unitCount) {
			return d
		}
	}
	return p.domains.Named(unitCount)
}

func (p *Pipeline) anonymousEligible(source *Source) bool {
	if !p.params.AllowAnonymous || !p.params.Lazy {
		return false
	}
	if p.persistApplicable() {
		return false
	}
	return source.Len() <= p.params.AnonymousMaxSource
}

// ---------------------------------------------------------------------------
// LoadedProgram
// ---------------------------------------------------------------------------

// LoadedProgram is an installed program ready to run. CompilationID
// identifies the back-end run that produced the code; re-installs of a
// persisted unit share it.
type LoadedProgram struct {
	Source        *Source
	CompilationID string
	Domain        Domain

	main *vm.FunctionTemplate
	pool *vm.ConstPool
}

// Main returns the program's top-level function.
func (lp *LoadedProgram) Main() *vm.FunctionTemplate { return lp.main }

// Run executes the program's top level and returns its value.
func (lp *LoadedProgram) Run(ctx *vm.Context) (vm.Value, error) {
	defer ctx.Timings.Measure("execute")()
	v, err := lp.main.Call(ctx, vm.Undefined, nil)
	if err != nil {
		return vm.Undefined, fmt.Errorf("run %s: %w", lp.Source.Name, err)
	}
	return v, nil
}
