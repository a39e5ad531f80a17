package scene

// Visibility holds the visible sets of one frame.
type Visibility struct {
	// Camera lists the submesh entities inside the view frustum.
	Camera []Entity

	// Transparent lists the visible entities with a transparent material.
	Transparent []Entity

	// Lights lists the active lights in registry order and Casters the
	// shadow casters each shadowed light reaches.
	Lights  []Entity
	Casters map[Entity][]Entity

	// Emitters, Decals are the visible effect entities.
	Emitters []Entity
	Decals   []Entity
}

// Reset empties v, keeping its storage.
func (v *Visibility) Reset() {
	v.Camera = v.Camera[:0]
	v.Transparent = v.Transparent[:0]
	v.Lights = v.Lights[:0]
	v.Emitters = v.Emitters[:0]
	v.Decals = v.Decals[:0]
	if v.Casters == nil {
		v.Casters = make(map[Entity][]Entity)
	}
	for k, list := range v.Casters {
		v.Casters[k] = list[:0]
	}
}

// ComputeVisibility fills v with the entities of r visible from frustum
// and from every active light.
func ComputeVisibility(r *Registry, frustum Frustum, v *Visibility) {
	v.Reset()

	type bounded struct {
		e   Entity
		box AABB
	}
	var meshes []bounded
	for e, tb := range View2[Transform, AABB](r) {
		if !Has[Submesh](r, e) {
			continue
		}
		box := tb.B.Transform(tb.A.World)
		meshes = append(meshes, bounded{e, box})
		if !frustum.IntersectsAABB(box) {
			continue
		}
		if sm := Get[Submesh](r, e); sm != nil && sm.Material != Null {
			if m := Get[Material](r, sm.Material); m != nil && m.Transparent {
				v.Transparent = append(v.Transparent, e)
				continue
			}
		}
		v.Camera = append(v.Camera, e)
	}

	for e, l := range View[Light](r) {
		if !l.Active {
			continue
		}
		v.Lights = append(v.Lights, e)
		if !l.CastsShadows {
			continue
		}
		casters := v.Casters[e][:0]
		for _, m := range meshes {
			if l.Type == LightDirectional || m.box.IntersectsSphere(l.Position, l.Range) {
				casters = append(casters, m.e)
			}
		}
		v.Casters[e] = casters
	}

	for e, em := range View[Emitter](r) {
		if frustum.IntersectsSphere(em.Position, 1) {
			v.Emitters = append(v.Emitters, e)
		}
	}
	unit := AABB{Min: Vec3{-0.5, -0.5, -0.5}, Max: Vec3{0.5, 0.5, 0.5}}
	for e, d := range View[Decal](r) {
		if frustum.IntersectsAABB(unit.Transform(d.Transform)) {
			v.Decals = append(v.Decals, e)
		}
	}
}
