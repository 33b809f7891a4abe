package game

import "fmt"

// Indexed is an entity that occupies a slot in a Repository.
type Indexed interface {
	comparable
	Index() int
	SetIndex(index int)
}

// Repository is a fixed capacity table of active entities. Indices are
// 1-based: index 0 never refers to an entity, matching what the client
// expects. A freed index is reused by the next Add.
type Repository[T Indexed] struct {
	entities []T
	size     int
}

// NewRepository creates a repository for up to capacity entities.
func NewRepository[T Indexed](capacity int) *Repository[T] {
	return &Repository[T]{entities: make([]T, capacity)}
}

// Add places e in the first free slot and assigns its index. It returns false
// when the repository is full.
func (r *Repository[T]) Add(e T) bool {
	var zero T
	for i, slot := range r.entities {
		if slot != zero {
			continue
		}
		r.entities[i] = e
		e.SetIndex(i + 1)
		r.size++
		return true
	}
	return false
}

// Remove frees the slot held by e. It returns false if e is not in the
// repository.
func (r *Repository[T]) Remove(e T) bool {
	index := e.Index()
	if index < 1 || index > len(r.entities) || r.entities[index-1] != e {
		return false
	}
	var zero T
	r.entities[index-1] = zero
	e.SetIndex(0)
	r.size--
	return true
}

// Get returns the entity at index, or the zero value if the slot is free.
func (r *Repository[T]) Get(index int) T {
	if index < 1 || index > len(r.entities) {
		panic(fmt.Sprintf("game: repository index %d out of range [1, %d]", index, len(r.entities)))
	}
	return r.entities[index-1]
}

// Size returns the number of entities.
func (r *Repository[T]) Size() int {
	return r.size
}

// Capacity returns the number of slots.
func (r *Repository[T]) Capacity() int {
	return len(r.entities)
}

// Full reports whether every slot is taken.
func (r *Repository[T]) Full() bool {
	return r.size == len(r.entities)
}

// Each calls fn for every entity in index order. Removing the current entity
// from inside fn is allowed.
func (r *Repository[T]) Each(fn func(e T)) {
	var zero T
	for _, e := range r.entities {
		if e != zero {
			fn(e)
		}
	}
}
