package gpucore

// Device creates and destroys compute resources.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying InvalidID or an unknown ID is a no-op
//   - IDs become invalid after destruction and are never reused
type Device interface {
	// CreateKernel compiles or loads a compute kernel.
	CreateKernel(desc *KernelDesc) (KernelID, error)

	// DestroyKernel releases a kernel.
	DestroyKernel(id KernelID)

	// CreateBuffer allocates a buffer. Contents start zeroed.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer. Views onto it become invalid.
	DestroyBuffer(id BufferID)

	// CreateTexture allocates a 2D texture. Contents start zeroed.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a texture. Views onto it become invalid.
	DestroyTexture(id TextureID)

	// WriteTexture replaces the contents of a texture. The data length must
	// equal width * height * format.BytesPerPixel().
	WriteTexture(id TextureID, data []byte) error

	// ReadTexture returns a copy of the texture contents, waiting for all
	// work recorded so far to complete.
	ReadTexture(id TextureID) ([]byte, error)

	// CreateShaderResourceView creates a read-only view.
	CreateShaderResourceView(desc *ViewDesc) (ViewID, error)

	// CreateUnorderedAccessView creates a read-write view.
	CreateUnorderedAccessView(desc *ViewDesc) (ViewID, error)

	// DestroyView releases a view. The viewed resource is unaffected.
	DestroyView(id ViewID)

	// CreateSampler creates a sampler state.
	CreateSampler(desc *SamplerDesc) (SamplerID, error)

	// DestroySampler releases a sampler.
	DestroySampler(id SamplerID)
}

// Context records compute state and dispatches.
//
// Set* methods bind consecutive slots starting at start. Passing
// InvalidID unbinds a slot. Dispatch failures are not reported
// synchronously; a device that loses work surfaces the failure on Flush or
// on the next readback.
type Context interface {
	// SetKernel selects the kernel used by subsequent dispatches.
	SetKernel(id KernelID)

	// SetSamplers binds samplers to slots s[start:].
	SetSamplers(start int, samplers []SamplerID)

	// SetConstantBuffers binds constant buffers to slots b[start:].
	SetConstantBuffers(start int, buffers []BufferID)

	// SetShaderResources binds read-only views to slots t[start:].
	SetShaderResources(start int, views []ViewID)

	// SetUnorderedAccessViews binds read-write views to slots u[start:].
	SetUnorderedAccessViews(start int, views []ViewID)

	// ClearUnorderedAccessViewUint fills every element of the viewed
	// resource with values, one value per 32-bit channel.
	ClearUnorderedAccessViewUint(view ViewID, values [4]uint32)

	// Dispatch runs the bound kernel over x*y*z workgroups.
	Dispatch(x, y, z uint32)

	// Map maps a dynamic buffer for CPU access. It returns nil when the
	// buffer cannot be mapped.
	Map(buffer BufferID, mode MapMode) []byte

	// Unmap ends a Map.
	Unmap(buffer BufferID)

	// Flush submits recorded work to the device.
	Flush() error
}
