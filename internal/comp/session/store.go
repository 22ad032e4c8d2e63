package session

import "github.com/argentwm/argent/wire"

// serverIDBase is the floor of the server-allocated object ID range;
// client-allocated IDs stay below it.
const serverIDBase = 0xFF000000

// store is one session's protocol object table.
type store struct {
	objects map[uint32]wire.Object
}

func newStore() *store {
	return &store{objects: make(map[uint32]wire.Object)}
}

// add registers an object under a client-allocated ID.
func (s *store) add(id uint32, obj wire.Object) {
	obj.SetID(id)
	s.objects[id] = obj
}

func (s *store) get(id uint32) wire.Object {
	return s.objects[id]
}

func (s *store) delete(id uint32) {
	obj := s.objects[id]
	delete(s.objects, id)
	if obj != nil {
		obj.Delete()
	}
}

// base carries the ID bookkeeping every protocol resource shares.
type base struct {
	id uint32
}

func (b *base) ID() uint32      { return b.id }
func (b *base) SetID(id uint32) { b.id = id }
func (b *base) Delete()         {}
