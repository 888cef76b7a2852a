package fallback

import (
	"math/rand"
	"sync"

	"github.com/hrygo/tutorsense/store/catalog"
)

// Bank serves offline content per module with a deterministic-but-randomized
// pick: a seeded generator makes sequences reproducible while avoiding serving
// the same item every time.
type Bank struct {
	mu      sync.Mutex
	byModul map[string][]catalog.ContentItem
	rng     *rand.Rand
}

// NewBank builds a bank from the catalogue. Seed fixes the pick sequence.
func NewBank(c *catalog.Catalog, seed int64) *Bank {
	byModule := make(map[string][]catalog.ContentItem)
	if c != nil {
		for _, item := range c.Items {
			byModule[item.Module] = append(byModule[item.Module], item)
		}
	}
	return &Bank{
		byModul: byModule,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Pick returns a random item from the module's bank, or false when the
// module has no offline content.
func (b *Bank) Pick(module string) (*catalog.ContentItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.byModul[module]
	if len(items) == 0 {
		return nil, false
	}
	item := items[b.rng.Intn(len(items))]
	return &item, true
}

// Size returns the number of items available for a module.
func (b *Bank) Size(module string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byModul[module])
}
