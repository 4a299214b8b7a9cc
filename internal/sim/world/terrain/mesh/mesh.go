package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

var (
	LandColor  = mgl32.Vec4{0, 1, 0, 1}
	WaterColor = mgl32.Vec4{0, 0, 1, 1}
)

// Classifier answers land/water for integer voxel coordinates.
type Classifier interface {
	ClassifyCell(cellX, cellZ int) bool
}

// ChunkMesh is one renderable unit: a shared vertex buffer with two triangle
// groups so land and water can use different materials.
type ChunkMesh struct {
	Vertices     []mgl32.Vec3
	UVs          []mgl32.Vec2
	Colors       []mgl32.Vec4
	LandIndices  []uint32
	WaterIndices []uint32
}

func (m *ChunkMesh) QuadCount() int { return len(m.Vertices) / 4 }

var quadUVs = [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

// addQuad appends four corners and returns the two triangles (0,2,1),(0,3,2).
func (m *ChunkMesh) addQuad(corners [4]mgl32.Vec3, color mgl32.Vec4) [6]uint32 {
	base := uint32(len(m.Vertices))
	for i, c := range corners {
		m.Vertices = append(m.Vertices, c)
		m.UVs = append(m.UVs, quadUVs[i])
		m.Colors = append(m.Colors, color)
	}
	return [6]uint32{base, base + 2, base + 1, base, base + 3, base + 2}
}

// Generate meshes chunk (cx,cz). Vertex positions are chunk-local; the chunk
// origin is (cx*chunkSize*voxelSize, 0, cz*chunkSize*voxelSize).
//
// Neighbours outside the chunk always count as non-land, so chunk borders get
// walls even when the adjacent chunk is land.
func Generate(cx, cz, chunkSize int, voxelSize float32, field Classifier) ChunkMesh {
	var m ChunkMesh
	if chunkSize <= 0 {
		return m
	}

	land := make([]bool, chunkSize*chunkSize)
	for y := 0; y < chunkSize; y++ {
		for x := 0; x < chunkSize; x++ {
			land[x+y*chunkSize] = field.ClassifyCell(cx*chunkSize+x, cz*chunkSize+y)
		}
	}
	isLand := func(x, y int) bool {
		if x < 0 || y < 0 || x >= chunkSize || y >= chunkSize {
			return false
		}
		return land[x+y*chunkSize]
	}

	for x := 0; x < chunkSize; x++ {
		for y := 0; y < chunkSize; y++ {
			l := isLand(x, y)
			var h float32
			color := WaterColor
			if l {
				h = voxelSize
				color = LandColor
			}
			x0, x1 := float32(x)*voxelSize, float32(x+1)*voxelSize
			z0, z1 := float32(y)*voxelSize, float32(y+1)*voxelSize

			tris := m.addQuad([4]mgl32.Vec3{
				{x0, h, z0},
				{x1, h, z0},
				{x1, h, z1},
				{x0, h, z1},
			}, color)
			if l {
				m.LandIndices = append(m.LandIndices, tris[:]...)
			} else {
				m.WaterIndices = append(m.WaterIndices, tris[:]...)
			}

			if !l || h <= 0 {
				continue
			}
			m.addWalls(x, y, x0, x1, z0, z1, h, isLand)
		}
	}
	return m
}

func (m *ChunkMesh) addWalls(x, y int, x0, x1, z0, z1, h float32, isLand func(x, y int) bool) {
	// -X
	if !isLand(x-1, y) {
		m.addWall([4]mgl32.Vec3{{x0, 0, z1}, {x0, 0, z0}, {x0, h, z0}, {x0, h, z1}})
	}
	// +X
	if !isLand(x+1, y) {
		m.addWall([4]mgl32.Vec3{{x1, 0, z0}, {x1, 0, z1}, {x1, h, z1}, {x1, h, z0}})
	}
	// -Z
	if !isLand(x, y-1) {
		m.addWall([4]mgl32.Vec3{{x0, 0, z0}, {x1, 0, z0}, {x1, h, z0}, {x0, h, z0}})
	}
	// +Z
	if !isLand(x, y+1) {
		m.addWall([4]mgl32.Vec3{{x1, 0, z1}, {x0, 0, z1}, {x0, h, z1}, {x1, h, z1}})
	}
}

func (m *ChunkMesh) addWall(corners [4]mgl32.Vec3) {
	tris := m.addQuad(corners, LandColor)
	m.LandIndices = append(m.LandIndices, tris[:]...)
}
