package container

// ContextualBuilder implements the fluent contextual binding API.
//
//	c.When("report").Needs("clock").Give(func(c *container.Container) (any, error) {
//	    return NewFrozenClock(), nil
//	})
type ContextualBuilder struct {
	container *Container
	consumer  string
	needs     string
}

// Needs specifies which abstract the consumer depends on.
func (b *ContextualBuilder) Needs(abstract string) *ContextualBuilder {
	b.needs = abstract
	return b
}

// Give provides the factory used when the consumer resolves the specified
// abstract. Keys are canonicalized so aliases behave as usual.
func (b *ContextualBuilder) Give(factory Factory) {
	c := b.container
	c.mu.Lock()
	defer c.mu.Unlock()

	consumer := c.canonical(b.consumer)
	needs := c.canonical(b.needs)
	if _, ok := c.contextual[consumer]; !ok {
		c.contextual[consumer] = make(map[string]Factory)
	}
	c.contextual[consumer][needs] = factory
}

// GiveValue is a shorthand for Give when the value is a simple scalar or
// pre-built instance (no factory logic needed).
//
//	c.When("report").Needs("storage.path").GiveValue("/tmp/reports")
func (b *ContextualBuilder) GiveValue(value any) {
	b.Give(func(_ *Container) (any, error) { return value, nil })
}
