package kernels

import (
	"unsafe"

	"honnef.co/go/safeish"
)

// Params is the parameter block shared by all kernels. Its layout matches
// the WGSL Params struct under uniform buffer layout rules.
type Params struct {
	SourceResolution    [2]int32
	InvSourceResolution [2]float32
	BufferResolution    [2]int32
	ScaleFactor         float32
	Padding             int32
	Tent                [9][4]int32
	Box                 [4][4]int32
}

// ParamsSize is the size of Params in bytes.
const ParamsSize = int(unsafe.Sizeof(Params{}))

// Constant buffers are bound in 16 byte units.
var _ [0]struct{} = [ParamsSize % 16]struct{}{}

// Bytes returns the in-memory representation of p. The slice aliases p.
func (p *Params) Bytes() []byte {
	return safeish.AsBytes(p)
}

// ParamsFrom views b as a parameter block. It returns nil when b is too
// short to hold one.
func ParamsFrom(b []byte) *Params {
	if len(b) < ParamsSize {
		return nil
	}
	return safeish.Cast[*Params](&b[0])
}
