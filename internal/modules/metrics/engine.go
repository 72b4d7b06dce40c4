package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/domain"
)

// Provider computes a metric whose formula is FormulaExternal. Providers are
// registered with the engine by the stable id of the metric they serve.
type Provider interface {
	MetricID() string
	Compute(ctx context.Context, in Inputs) (Result, error)
}

// DefinitionSource loads definitions by id.
type DefinitionSource interface {
	GetByID(ctx context.Context, id string) (*Definition, error)
}

// ValueStore is the part of the value store the engine uses.
type ValueStore interface {
	Latest(ctx context.Context, metricID string, target domain.Target) (*Value, error)
	Upsert(ctx context.Context, def *Definition, in ValueInput) (*Value, error)
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Definitions DefinitionSource
	Values      ValueStore
	Entities    domain.EntityResolver
	Ledger      domain.TransactionLedger
	// Market is optional. Without it a missing stored market price is NoValue.
	Market domain.MarketDataProvider
	// PersistFetchedPrices writes provider prices through as Market Price values.
	PersistFetchedPrices bool
	Clock                func() time.Time
}

// Engine evaluates metrics by walking their declared dependency graph.
type Engine struct {
	cfg       EngineConfig
	providers map[string]Provider
	log       zerolog.Logger
}

// NewEngine creates an engine. Providers are keyed by their MetricID; a
// later provider for the same id replaces an earlier one.
func NewEngine(cfg EngineConfig, providers []Provider, log zerolog.Logger) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.MetricID()] = p
	}
	return &Engine{
		cfg:       cfg,
		providers: byID,
		log:       log.With().Str("component", "metric_engine").Logger(),
	}
}

// Compute evaluates def for target. The feature view is fixed for the whole
// evaluation. Only cycles and storage failures are returned as errors.
func (e *Engine) Compute(ctx context.Context, def *Definition, target domain.Target, view FeatureView) (Result, error) {
	if view == nil {
		view = AllFamiliesEnabled
	}
	ev := &evaluation{
		engine:   e,
		view:     view,
		memo:     make(map[evalKey]Result),
		visiting: make(map[evalKey]bool),
		today:    e.cfg.Clock().UTC(),
	}

	result, err := ev.resolve(ctx, def, target)
	if err != nil {
		var cycle *CycleError
		if errors.As(err, &cycle) {
			e.log.Error().Strs("path", cycle.Path).Str("target", target.Key()).Msg("Cyclic metric dependency")
		}
		return Result{}, err
	}

	e.log.Debug().
		Str("metric_id", def.ID).
		Str("target", target.Key()).
		Str("status", string(result.Status)).
		Int("evaluated", len(ev.memo)).
		Msg("Metric evaluated")
	return result, nil
}

type evalKey struct {
	metricID  string
	targetKey string
}

// evaluation is the state of one Compute call: the memo gives every branch
// the same snapshot and the visiting set guards against cycles.
type evaluation struct {
	engine   *Engine
	view     FeatureView
	memo     map[evalKey]Result
	visiting map[evalKey]bool
	path     []string
	today    time.Time
}

func (ev *evaluation) resolve(ctx context.Context, def *Definition, target domain.Target) (Result, error) {
	key := evalKey{metricID: def.ID, targetKey: target.Key()}
	if r, ok := ev.memo[key]; ok {
		return r, nil
	}
	if ev.visiting[key] {
		return Result{}, &CycleError{Path: append(append([]string(nil), ev.path...), def.ID)}
	}

	ev.visiting[key] = true
	ev.path = append(ev.path, def.ID)
	result, err := ev.evaluate(ctx, def, target)
	ev.path = ev.path[:len(ev.path)-1]
	delete(ev.visiting, key)
	if err != nil {
		return Result{}, err
	}

	result.MetricID = def.ID
	result.Target = target
	ev.memo[key] = result
	return result, nil
}

func (ev *evaluation) evaluate(ctx context.Context, def *Definition, target domain.Target) (Result, error) {
	if Suppressed(def, ev.view) {
		return Result{Status: StatusSuppressed, Reason: ReasonFeatureDisabled}, nil
	}
	if !ValidateScope(def, target) {
		return Result{
			Status: StatusScopeMismatch,
			Reason: fmt.Sprintf("%s metric cannot be evaluated for %s", def.Scope, target.Scope),
		}, nil
	}
	if !def.IsActive {
		return NoValue(ReasonInactive), nil
	}

	if !def.IsDerived {
		v, err := ev.engine.cfg.Values.Latest(ctx, def.ID, target)
		if err != nil {
			return Result{}, err
		}
		return fromStored(v), nil
	}

	spec, ok := formulaTable[def.Formula]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s has unknown formula %q", ErrInvalidDefinition, def.Name, def.Formula)
	}

	in, err := ev.gatherDependencies(ctx, def, target)
	if err != nil {
		return Result{}, err
	}
	if err := ev.gatherFacts(ctx, spec.facts, target, &in); err != nil {
		return Result{}, err
	}

	var result Result
	if def.Formula == FormulaExternal {
		provider, ok := ev.engine.providers[def.ID]
		if !ok {
			return NoValue(ReasonNoProvider), nil
		}
		result, err = provider.Compute(ctx, in)
		if err != nil {
			return Result{}, fmt.Errorf("provider for %s: %w", def.Name, err)
		}
	} else {
		result = spec.fn(in)
	}

	if result.OK() && def.WriteThrough {
		if err := ev.writeThrough(ctx, def, target, result, ProvenanceComputed); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// gatherDependencies resolves every declared dependency in order, following
// the scope relation between dependent and dependency.
func (ev *evaluation) gatherDependencies(ctx context.Context, def *Definition, target domain.Target) (Inputs, error) {
	in := Inputs{
		Target:  target,
		Today:   ev.today,
		Values:  make(map[string]Result, len(def.Dependencies)),
		Rollups: make(map[string][]Result),
	}

	for _, depID := range def.Dependencies {
		dep, err := ev.engine.cfg.Definitions.GetByID(ctx, depID)
		if err != nil {
			return in, err
		}
		if dep == nil {
			in.Values[depID] = NoValue(ReasonMissingInput)
			continue
		}

		switch relationBetween(target.Scope, dep.Scope) {
		case relationSame:
			r, err := ev.resolve(ctx, dep, target)
			if err != nil {
				return in, err
			}
			in.Values[dep.ID] = r

		case relationParent:
			parent, found, err := ev.parentOf(ctx, target, dep.Scope)
			if err != nil {
				return in, err
			}
			if !found {
				in.Values[dep.ID] = NoValue(ReasonTargetNotFound)
				continue
			}
			r, err := ev.resolve(ctx, dep, parent)
			if err != nil {
				return in, err
			}
			in.Values[dep.ID] = r

		case relationRollup:
			positions, err := ev.engine.cfg.Entities.ActivePositions(ctx, target.ID)
			if err != nil {
				return in, err
			}
			results := make([]Result, 0, len(positions))
			for _, p := range positions {
				r, err := ev.resolve(ctx, dep, domain.PositionTarget(p.ID))
				if err != nil {
					return in, err
				}
				results = append(results, r)
			}
			in.Rollups[dep.ID] = results

		default:
			in.Values[dep.ID] = Result{
				Status: StatusScopeMismatch,
				Reason: fmt.Sprintf("%s is not reachable from %s", dep.Scope, target.Scope),
			}
		}
	}
	return in, nil
}

// parentOf walks from a position or transaction up to the target of scope.
func (ev *evaluation) parentOf(ctx context.Context, target domain.Target, scope domain.ScopeType) (domain.Target, bool, error) {
	current := target
	for current.Scope != scope {
		switch current.Scope {
		case domain.ScopeTransaction:
			tx, err := ev.engine.cfg.Ledger.GetTransaction(ctx, current.ID)
			if err != nil || tx == nil {
				return domain.Target{}, false, err
			}
			current = domain.PositionTarget(tx.PositionID)
		case domain.ScopePosition:
			pos, err := ev.engine.cfg.Entities.GetPosition(ctx, current.ID)
			if err != nil || pos == nil {
				return domain.Target{}, false, err
			}
			current = domain.PortfolioTarget(pos.PortfolioID)
		default:
			return domain.Target{}, false, nil
		}
	}
	return current, true, nil
}

func (ev *evaluation) gatherFacts(ctx context.Context, facts []fact, target domain.Target, in *Inputs) error {
	cfg := ev.engine.cfg
	for _, f := range facts {
		switch f {
		case factPositionTransactions:
			if target.Scope != domain.ScopePosition {
				continue
			}
			txs, err := cfg.Ledger.CompletedTransactions(ctx, target.ID)
			if err != nil {
				return err
			}
			in.Transactions = txs

		case factTransaction:
			if target.Scope != domain.ScopeTransaction {
				continue
			}
			tx, err := cfg.Ledger.GetTransaction(ctx, target.ID)
			if err != nil {
				return err
			}
			in.Transaction = tx

		case factMarketQuote:
			if target.Scope != domain.ScopePosition || in.Value(KeyMarketPrice).OK() || cfg.Market == nil {
				continue
			}
			if err := ev.fetchQuote(ctx, target, in); err != nil {
				return err
			}
		}
	}
	return nil
}

// fetchQuote asks the market data provider for a price the store does not
// have. Provider failures degrade to NoValue; only storage errors are returned.
func (ev *evaluation) fetchQuote(ctx context.Context, target domain.Target, in *Inputs) error {
	cfg := ev.engine.cfg
	pos, err := cfg.Entities.GetPosition(ctx, target.ID)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	quote, err := cfg.Market.LatestPrice(ctx, pos.Ticker)
	if err != nil {
		ev.engine.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("Market price unavailable")
		in.QuoteErr = err
		return nil
	}
	in.Quote = &quote

	if !cfg.PersistFetchedPrices {
		return nil
	}
	priceDef, err := cfg.Definitions.GetByID(ctx, SystemID(KeyMarketPrice))
	if err != nil || priceDef == nil {
		return err
	}
	source := quote.Source
	if source == "" {
		source = ProvenanceComputed
	}
	date := quote.Date
	if date.IsZero() {
		date = ev.today
	}
	price := quote.Price
	_, err = cfg.Values.Upsert(ctx, priceDef, ValueInput{
		Date:       date,
		Numeric:    &price,
		Target:     RefFor(target),
		Provenance: source,
	})
	return err
}

func (ev *evaluation) writeThrough(ctx context.Context, def *Definition, target domain.Target, result Result, provenance string) error {
	in := ValueInput{
		Date:       ev.today,
		Target:     RefFor(target),
		Provenance: provenance,
	}
	if def.Kind.IsMemo() {
		if result.Text == nil {
			return nil
		}
		in.Text = result.Text
	} else {
		if result.Numeric == nil {
			return nil
		}
		d := *result.Numeric
		in.Numeric = &d
	}
	_, err := ev.engine.cfg.Values.Upsert(ctx, def, in)
	return err
}
