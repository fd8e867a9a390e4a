package bias

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
)

// exprEnv is the variable set visible to a rule expression.
type exprEnv struct {
	Bet    float64
	Streak int
	RTP    float64
	Choice string
}

// exprCache compiles each distinct expression once and evaluates it in a
// sandboxed runtime. Evaluation is serialized: goja runtimes are not safe for
// concurrent use, and rule expressions are tiny.
type exprCache struct {
	mu       sync.Mutex
	runtime  *goja.Runtime
	programs map[string]*goja.Program
}

func newExprCache() *exprCache {
	rt := goja.New()
	// Expressions compute over injected variables only.
	rt.Set("require", goja.Undefined())
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())
	return &exprCache{
		runtime:  rt,
		programs: make(map[string]*goja.Program),
	}
}

// eval runs the expression against the environment and interprets the result
// as a boolean.
func (c *exprCache) eval(src string, env exprEnv) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prog, ok := c.programs[src]
	if !ok {
		var err error
		prog, err = goja.Compile("rule-expr", src, true)
		if err != nil {
			return false, fmt.Errorf("compile: %w", err)
		}
		c.programs[src] = prog
	}

	c.runtime.Set("bet", env.Bet)
	c.runtime.Set("streak", env.Streak)
	c.runtime.Set("rtp", env.RTP)
	c.runtime.Set("choice", env.Choice)

	val, err := c.runtime.RunProgram(prog)
	if err != nil {
		return false, fmt.Errorf("run: %w", err)
	}
	return val.ToBoolean(), nil
}
