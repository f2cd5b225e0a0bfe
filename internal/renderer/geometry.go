package renderer

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/texturedquad/internal/gpu"
)

type Vertex struct {
	Position mgl32.Vec2
	Color    mgl32.Vec3
}

// QuadVertices and QuadIndices describe a unit quad centred on the origin.
var QuadVertices = []Vertex{
	{Position: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
	{Position: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
	{Position: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
	{Position: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
}

var QuadIndices = []uint16{0, 1, 2, 2, 3, 0}

func vertexBindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// Geometry is an immutable vertex and index buffer pair in device-local
// memory.
type Geometry struct {
	Vertices   *BufferAllocation
	Indices    *BufferAllocation
	IndexCount int
	IndexType  core1_0.IndexType
}

// UploadGeometry copies vertices and indices into device-local buffers. No
// staging memory survives the call, whether or not it succeeds.
func UploadGeometry(transfer *TransferEngine, vertices []Vertex, indices []uint16) (*Geometry, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, errors.New("geometry needs at least one vertex and one index")
	}

	vertexData, err := encode(vertices)
	if err != nil {
		return nil, err
	}
	indexData, err := encode(indices)
	if err != nil {
		return nil, err
	}

	geometry := &Geometry{
		IndexCount: len(indices),
		IndexType:  core1_0.IndexTypeUInt16,
	}

	geometry.Vertices, err = transfer.UploadBuffer(vertexData, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrap(err, "upload vertex buffer")
	}

	geometry.Indices, err = transfer.UploadBuffer(indexData, core1_0.BufferUsageIndexBuffer)
	if err != nil {
		geometry.Release()
		return nil, errors.Wrap(err, "upload index buffer")
	}

	return geometry, nil
}

func (g *Geometry) Bind(device gpu.Device, cb gpu.CommandBuffer) {
	device.CmdBindVertexBuffer(cb, g.Vertices.Buffer)
	device.CmdBindIndexBuffer(cb, g.Indices.Buffer, g.IndexType)
}

func (g *Geometry) Release() {
	if g == nil {
		return
	}
	g.Indices.Release()
	g.Vertices.Release()
}
