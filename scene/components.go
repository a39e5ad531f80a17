package scene

// Transform places an entity in the world.
type Transform struct {
	World Mat4
}

// Submesh is a range of the shared vertex and index buffers.
type Submesh struct {
	VertexOffset uint32
	IndexOffset  uint32
	IndexCount   uint32

	// Material is the entity holding the Material component.
	Material Entity
}

// TextureNone marks an unset material texture.
const TextureNone int32 = -1

// Material holds bindless texture indices and factors.
type Material struct {
	AlbedoTexture            int32
	MetallicRoughnessTexture int32
	NormalTexture            int32
	EmissiveTexture          int32

	AlbedoFactor   [3]float32
	MetallicFactor float32
	RoughFactor    float32
	EmissiveFactor float32
	AlphaCutoff    float32

	// Transparent entities are drawn by the forward pass.
	Transparent bool
}

// LightType selects the light model.
type LightType uint8

// Light types.
const (
	LightDirectional LightType = iota
	LightPoint
	LightSpot
)

// Light is a punctual or directional light.
type Light struct {
	Type      LightType
	Color     [3]float32
	Intensity float32
	Position  Vec3
	Direction Vec3

	// Range bounds point and spot lights.
	Range float32

	// OuterCos is the cosine of the spot cone half angle.
	OuterCos float32

	Active           bool
	CastsShadows     bool
	RayTracedShadows bool
	Volumetric       bool
	VolumetricSteps  uint32
}

// AABB is an axis-aligned bounding box in object space.
type AABB struct {
	Min, Max Vec3
}

// Emitter spawns GPU particles.
type Emitter struct {
	Position     Vec3
	Velocity     Vec3
	SpawnRate    float32
	MaxParticles uint32
	Texture      int32
	Sort         bool

	// Accumulator carries fractional spawns between frames.
	Accumulator float32
}

// Decal projects a texture onto the GBuffer.
type Decal struct {
	Albedo int32
	Normal int32

	// Modifies selects whether the decal changes normals as well.
	ModifyNormals bool
	Transform     Mat4
}

// Skybox is the environment cube map.
type Skybox struct {
	CubeTexture int32
	Active      bool
}

// Relationship links an entity to its parent and children.
type Relationship struct {
	Parent   Entity
	Children []Entity
}
