// Command graphd-query is the engine's composition root. It plans a
// constraint against a demo in-memory primitive store, drives the
// resulting iterator tree to completion (or to a cursor, if the budget
// runs out first), and prints the matching ids. There is no wire protocol
// here — the consuming query layer is an external collaborator (spec.md
// §1) — so the CLI stands in for it the way teacher's cmd/bulk-delete
// stands in for its HTTP server as a second, narrower composition root.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/graphd/queryengine/internal/domain/constraint"
	"github.com/graphd/queryengine/internal/domain/cursor"
	"github.com/graphd/queryengine/internal/domain/iterator"
	"github.com/graphd/queryengine/internal/domain/primitive"
	"github.com/graphd/queryengine/internal/infrastructure/budget"
	"github.com/graphd/queryengine/internal/infrastructure/engineconfig"
	"github.com/graphd/queryengine/internal/infrastructure/rescache"
	"github.com/graphd/queryengine/internal/repo/memstore"
	"github.com/graphd/queryengine/internal/service/planner"
)

// CLI is the full flag/subcommand surface, bound by kong.
type CLI struct {
	engineconfig.Config

	Query QueryCmd `cmd:"" help:"plan and run a constraint against a demo dataset"`
	Thaw  ThawCmd  `cmd:"" help:"resume a previously-frozen cursor against a demo dataset"`
}

// QueryCmd plans and drives one constraint to completion or exhaustion.
type QueryCmd struct {
	DatasetFile    string `arg:"" type:"existingfile" help:"JSON array of demo primitives"`
	ConstraintFile string `arg:"" type:"existingfile" help:"JSON-encoded constraint.Constraint"`
}

func (q *QueryCmd) Run(cfg *engineconfig.Config, log *zap.Logger) error {
	store, err := loadDataset(q.DatasetFile)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	c, err := loadConstraint(q.ConstraintFile)
	if err != nil {
		return fmt.Errorf("load constraint: %w", err)
	}

	reg := cursor.NewRegistry()
	p := planner.New(store, reg).WithResourceCache(newResourceCache(cfg, log), cfg.IsaCacheSerialCap)
	it, err := p.Plan(c)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	return drive(it, cfg, log)
}

// ThawCmd resumes a frozen cursor string.
type ThawCmd struct {
	DatasetFile string `arg:"" type:"existingfile" help:"JSON array of demo primitives"`
	Cursor      string `arg:"" help:"frozen cursor text"`
}

func (t *ThawCmd) Run(cfg *engineconfig.Config, log *zap.Logger) error {
	store, err := loadDataset(t.DatasetFile)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	reg := cursor.NewRegistry()
	p := planner.New(store, reg).WithResourceCache(newResourceCache(cfg, log), cfg.IsaCacheSerialCap)
	it, err := p.ThawCursor(t.Cursor)
	if err != nil {
		return fmt.Errorf("thaw: %w", err)
	}
	return drive(it, cfg, log)
}

// drive runs it to completion against a tick budget, printing each id. If
// the budget runs dry before exhaustion, it freezes it to a resumable
// cursor and prints that instead (spec.md §5 "soft timeout ... convert to
// cursor emission").
func drive(it iterator.Iterator, cfg *engineconfig.Config, log *zap.Logger) error {
	b := budget.New(cfg.TickBudget)
	n := 0
	for {
		id, err := it.Next(b)
		if err != nil {
			if iterator.Is(err, iterator.ErrNoMoreData) {
				log.Info("done", zap.Int("matched", n))
				return nil
			}
			if iterator.Is(err, iterator.ErrMoreBudget) {
				text, ferr := it.Freeze(iterator.FreezeAll)
				if ferr != nil {
					return fmt.Errorf("freeze on budget exhaustion: %w", ferr)
				}
				log.Info("budget exhausted, resumable", zap.String("cursor", text), zap.Int("matched", n))
				fmt.Println(text)
				return nil
			}
			return fmt.Errorf("next: %w", err)
		}
		fmt.Println(uint64(id))
		n++
	}
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("graphd-query"),
		kong.Description("plan and drive constraint-tree query engine iterators"),
		kong.UsageOnError(),
	)

	log := cli.Config.NewLogger()
	defer log.Sync()

	err := kctx.Run(&cli.Config, log)
	kctx.FatalIfErrorf(err)
}

// newResourceCache builds the iterator-resource cache (spec.md §5) from
// cfg: a Redis client backs the durable tier when RedisAddr is set, leaving
// the cache purely in-process otherwise.
func newResourceCache(cfg *engineconfig.Config, log *zap.Logger) *rescache.Cache {
	var client *redis.Client
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	}
	return rescache.New(cfg.ResourceCacheBudget, client, "graphd-query:", log)
}

func loadDataset(path string) (*memstore.Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var prs []*primitive.Primitive
	if err := json.Unmarshal(raw, &prs); err != nil {
		return nil, err
	}
	return memstore.New(prs), nil
}

func loadConstraint(path string) (*constraint.Constraint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c constraint.Constraint
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
