package rewards

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no ambiguous glyphs

// CodeGenerator produces redemption codes.
type CodeGenerator interface {
	NewCode() string
}

// codeGen is a seedable generator so tests get reproducible codes.
type codeGen struct {
	mu     sync.Mutex
	prefix string
	rng    *rand.Rand
}

// NewCodeGenerator returns a generator producing codes like "MDL-7KQ2X9RC".
// Pass a fixed-seed PCG source for deterministic tests.
func NewCodeGenerator(prefix string, src rand.Source) CodeGenerator {
	return &codeGen{prefix: prefix, rng: rand.New(src)}
}

func (g *codeGen) NewCode() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = codeAlphabet[g.rng.IntN(len(codeAlphabet))]
	}
	return fmt.Sprintf("%s-%s", g.prefix, buf)
}
