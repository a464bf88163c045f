/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import (
	"container/list"

	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// fifo holds the resident entries of a single priority class in sequence order. Entries are appended at admission, so
// sequence order and insertion order coincide. It is not safe for concurrent use; the owning `ConnectionQueue`
// serializes access.
type fifo struct {
	entries *list.List
	index   map[*types.QueueEntry]*list.Element
}

func newFIFO() *fifo {
	return &fifo{
		entries: list.New(),
		index:   make(map[*types.QueueEntry]*list.Element),
	}
}

func (f *fifo) len() int { return f.entries.Len() }

func (f *fifo) pushBack(e *types.QueueEntry) {
	f.index[e] = f.entries.PushBack(e)
}

// peekFront returns the oldest entry without removing it.
func (f *fifo) peekFront() *types.QueueEntry {
	front := f.entries.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*types.QueueEntry)
}

func (f *fifo) popFront() *types.QueueEntry {
	front := f.entries.Front()
	if front == nil {
		return nil
	}
	e := f.entries.Remove(front).(*types.QueueEntry)
	delete(f.index, e)
	return e
}

// remove removes e if it is resident and reports whether it was.
func (f *fifo) remove(e *types.QueueEntry) bool {
	elem, ok := f.index[e]
	if !ok {
		return false
	}
	f.entries.Remove(elem)
	delete(f.index, e)
	return true
}

func (f *fifo) contains(e *types.QueueEntry) bool {
	_, ok := f.index[e]
	return ok
}

// oldest calls fn for each entry from oldest to newest until fn returns false. fn must not mutate the fifo.
func (f *fifo) oldest(fn func(*types.QueueEntry) bool) {
	for elem := f.entries.Front(); elem != nil; elem = elem.Next() {
		if !fn(elem.Value.(*types.QueueEntry)) {
			return
		}
	}
}

func (f *fifo) clear() int {
	n := f.entries.Len()
	f.entries.Init()
	clear(f.index)
	return n
}
