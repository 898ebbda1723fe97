package cells

import (
	"sync"

	"golang.org/x/exp/slices"
)

// A Responder handles one event kind. Handlers select on kind only; the
// payload is inspected after dispatch with a type switch.
type Responder func(event Event)

type responder struct {
	owner   *Observation
	handler Responder
}

// responderList makes a copy of the list on update,
// so that dispatch can iterate a snapshot without holding the lock
type responderList struct {
	responders []*responder
}

func (self *responderList) get() []*responder {
	if self == nil {
		return nil
	}
	return self.responders
}

func (self *responderList) add(r *responder) *responderList {
	next := &responderList{
		responders: slices.Clone(self.get()),
	}
	next.responders = append(next.responders, r)
	return next
}

func (self *responderList) removeOwner(owner *Observation) *responderList {
	next := &responderList{
		responders: slices.DeleteFunc(slices.Clone(self.get()), func(r *responder) bool {
			return r.owner == owner
		}),
	}
	return next
}

// Subject is the shared bus that components publish to and subscribe on.
//
// Dispatch is synchronous on the caller's goroutine. Within one Notify all
// responders for the event kind run to completion, in registration order,
// before Notify returns. A responder may itself Notify.
type Subject struct {
	mutex      sync.Mutex
	responders map[EventKind]*responderList
}

func NewSubject() *Subject {
	return &Subject{
		responders: map[EventKind]*responderList{},
	}
}

func (self *Subject) Register(owner *Observation, kind EventKind, handler Responder) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.responders[kind] = self.responders[kind].add(&responder{
		owner:   owner,
		handler: handler,
	})
}

// Unregister removes every responder registered by the owner.
func (self *Subject) Unregister(owner *Observation) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for kind, list := range self.responders {
		next := list.removeOwner(owner)
		if len(next.responders) == 0 {
			delete(self.responders, kind)
		} else {
			self.responders[kind] = next
		}
	}
}

func (self *Subject) Notify(event Event) {
	self.mutex.Lock()
	responders := self.responders[event.Kind()].get()
	self.mutex.Unlock()

	for _, r := range responders {
		r.handler(event)
	}
}

// ResponderCount is the number of responders currently registered for the kind.
func (self *Subject) ResponderCount(kind EventKind) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return len(self.responders[kind].get())
}

// Observation is the registration identity of one component on a subject.
// Components embed it and call Unregister when they are torn down.
type Observation struct {
	subject *Subject
}

func NewObservation(subject *Subject) *Observation {
	return &Observation{
		subject: subject,
	}
}

func (self *Observation) Subject() *Subject {
	return self.subject
}

func (self *Observation) AddResponder(kind EventKind, handler Responder) {
	self.subject.Register(self, kind, handler)
}

func (self *Observation) Notify(event Event) {
	self.subject.Notify(event)
}

func (self *Observation) Unregister() {
	self.subject.Unregister(self)
}
