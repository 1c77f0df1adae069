package contextbuilder

import "container/list"

// lru is a small process-local cache fronting Redis for assistant lookups.
// No pack example vendors an LRU dependency (DESIGN.md records this as the
// one deliberately stdlib-only piece of contextbuilder); container/list is
// the standard textbook LRU built on the intrusive doubly-linked list the
// stdlib already provides.
type lru struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	key   string
	value interface{}
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *lru) Get(key string) (interface{}, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) Put(key string, value interface{}) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}

func (c *lru) Delete(key string) {
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}
