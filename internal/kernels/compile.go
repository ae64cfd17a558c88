package kernels

import (
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/naga"
)

// DefaultCacheSize is the number of compiled modules kept by the default
// compiler. It holds every kernel of the pipeline.
const DefaultCacheSize = 16

// Compiler translates WGSL to SPIR-V and caches the result by source hash.
// Compiler is safe for concurrent use.
type Compiler struct {
	cache   *lru.Cache[uint64, []uint32]
	compile func(string) ([]byte, error)
}

// NewCompiler creates a compiler keeping at most size modules.
// If size <= 0, DefaultCacheSize is used.
func NewCompiler(size int) *Compiler {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[uint64, []uint32](size)
	return &Compiler{cache: cache, compile: naga.Compile}
}

var defaultCompiler = NewCompiler(DefaultCacheSize)

// SPIRV compiles source with the default compiler.
func SPIRV(source string) ([]uint32, error) {
	return defaultCompiler.SPIRV(source)
}

// SPIRV returns the SPIR-V words for source, compiling on a cache miss.
// The returned slice is shared and must not be modified.
func (c *Compiler) SPIRV(source string) ([]uint32, error) {
	key := sourceHash(source)
	if words, ok := c.cache.Get(key); ok {
		return words, nil
	}

	spirv, err := c.compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile kernel: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile kernel: SPIR-V length %d is not a multiple of 4", len(spirv))
	}

	words := toWords(spirv)
	c.cache.Add(key, words)
	return words, nil
}

// Len returns the number of cached modules.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

func sourceHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s)) // fnv.Write never returns an error
	return h.Sum64()
}

// toWords converts little-endian SPIR-V bytes to 32-bit words.
func toWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
