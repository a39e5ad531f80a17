package scene

import (
	"iter"
	"reflect"
	"slices"
)

// Entity identifies an object in a Registry. The zero Entity is never
// allocated.
type Entity uint32

// Null is the invalid entity.
const Null Entity = 0

type eraser interface {
	erase(e Entity)
	len() int
}

// pool stores one component type densely.
type pool[C any] struct {
	dense    []C
	entities []Entity
	index    map[Entity]int
}

func (p *pool[C]) erase(e Entity) {
	i, ok := p.index[e]
	if !ok {
		return
	}
	last := len(p.dense) - 1
	p.dense[i] = p.dense[last]
	p.entities[i] = p.entities[last]
	p.index[p.entities[i]] = i
	p.dense = p.dense[:last]
	p.entities = p.entities[:last]
	delete(p.index, e)
}

func (p *pool[C]) len() int { return len(p.dense) }

// Registry is a flat entity-component store. It is not safe for
// concurrent use.
type Registry struct {
	next  Entity
	alive map[Entity]bool
	pools map[reflect.Type]eraser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		alive: make(map[Entity]bool),
		pools: make(map[reflect.Type]eraser),
	}
}

// Create allocates a new entity.
func (r *Registry) Create() Entity {
	r.next++
	r.alive[r.next] = true
	return r.next
}

// Valid reports whether e is alive.
func (r *Registry) Valid(e Entity) bool { return r.alive[e] }

// Destroy removes e and all of its components.
func (r *Registry) Destroy(e Entity) {
	if !r.alive[e] {
		return
	}
	for _, p := range r.pools {
		p.erase(e)
	}
	delete(r.alive, e)
}

// Len returns the number of live entities.
func (r *Registry) Len() int { return len(r.alive) }

func poolOf[C any](r *Registry, create bool) *pool[C] {
	t := reflect.TypeFor[C]()
	if p, ok := r.pools[t]; ok {
		return p.(*pool[C])
	}
	if !create {
		return nil
	}
	p := &pool[C]{index: make(map[Entity]int)}
	r.pools[t] = p
	return p
}

// Add attaches c to e, replacing a component of the same type, and returns
// a pointer to the stored copy. The pointer is valid until the next Add or
// Remove of type C.
func Add[C any](r *Registry, e Entity, c C) *C {
	if !r.alive[e] {
		return nil
	}
	p := poolOf[C](r, true)
	if i, ok := p.index[e]; ok {
		p.dense[i] = c
		return &p.dense[i]
	}
	p.index[e] = len(p.dense)
	p.dense = append(p.dense, c)
	p.entities = append(p.entities, e)
	return &p.dense[len(p.dense)-1]
}

// Get returns e's component of type C, or nil.
func Get[C any](r *Registry, e Entity) *C {
	p := poolOf[C](r, false)
	if p == nil {
		return nil
	}
	i, ok := p.index[e]
	if !ok {
		return nil
	}
	return &p.dense[i]
}

// Has reports whether e has a component of type C.
func Has[C any](r *Registry, e Entity) bool { return Get[C](r, e) != nil }

// Remove detaches e's component of type C.
func Remove[C any](r *Registry, e Entity) {
	if p := poolOf[C](r, false); p != nil {
		p.erase(e)
	}
}

// Count returns the number of entities with a component of type C.
func Count[C any](r *Registry) int {
	if p := poolOf[C](r, false); p != nil {
		return p.len()
	}
	return 0
}

// View yields every entity with a component of type C, in insertion order
// unless components were removed. Components must not be added or removed
// during iteration.
func View[C any](r *Registry) iter.Seq2[Entity, *C] {
	return func(yield func(Entity, *C) bool) {
		p := poolOf[C](r, false)
		if p == nil {
			return
		}
		for i, e := range p.entities {
			if !yield(e, &p.dense[i]) {
				return
			}
		}
	}
}

// Pair holds the two components yielded by View2.
type Pair[A, B any] struct {
	A *A
	B *B
}

// View2 yields every entity carrying both A and B.
func View2[A, B any](r *Registry) iter.Seq2[Entity, Pair[A, B]] {
	return func(yield func(Entity, Pair[A, B]) bool) {
		pa, pb := poolOf[A](r, false), poolOf[B](r, false)
		if pa == nil || pb == nil {
			return
		}
		for i, e := range pa.entities {
			j, ok := pb.index[e]
			if !ok {
				continue
			}
			if !yield(e, Pair[A, B]{A: &pa.dense[i], B: &pb.dense[j]}) {
				return
			}
		}
	}
}

// SetParent links child under parent, unlinking it from a previous parent.
// A Null parent only unlinks.
func (r *Registry) SetParent(child, parent Entity) {
	if rel := Get[Relationship](r, child); rel != nil && rel.Parent != Null {
		if old := Get[Relationship](r, rel.Parent); old != nil {
			old.Children = slices.DeleteFunc(old.Children, func(c Entity) bool { return c == child })
		}
	}
	if parent != Null {
		if !Has[Relationship](r, parent) {
			Add(r, parent, Relationship{})
		}
		prel := Get[Relationship](r, parent)
		prel.Children = append(prel.Children, child)
	}
	rel := Get[Relationship](r, child)
	if rel == nil {
		rel = Add(r, child, Relationship{})
	}
	rel.Parent = parent
}
