package scheduler

import (
	"math/rand/v2"

	"github.com/me/ossim/pkg/model"
)

// BudgetSource hands out the lifetime budget of each newly spawned task.
type BudgetSource interface {
	Next() model.Budget
}

// RandomBudgets draws budgets with seconds in [1, limit] and nanoseconds in
// [0, 1e9). The same seed yields the same sequence.
type RandomBudgets struct {
	rng   *rand.Rand
	limit uint32
}

// NewRandomBudgets creates a seeded budget source. limit is clamped to
// [1, model.MaxBudgetSeconds].
func NewRandomBudgets(limit int, seed uint64) *RandomBudgets {
	limit = min(max(limit, 1), model.MaxBudgetSeconds)
	return &RandomBudgets{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		limit: uint32(limit),
	}
}

func (r *RandomBudgets) Next() model.Budget {
	return model.Budget{
		Seconds:     1 + r.rng.Uint32N(r.limit),
		Nanoseconds: r.rng.Uint32N(model.NanosPerSecond),
	}
}

// FixedBudget gives every task the same budget.
type FixedBudget model.Budget

func (f FixedBudget) Next() model.Budget {
	return model.Budget(f)
}
