package resolve

// Composite combines two resolvers: First is always asked first and Second
// serves as its fallback. Both are fixed at construction.
type Composite[F, S Resolver] struct {
	first  F
	second S
}

// NewComposite creates a Composite of first and second.
func NewComposite[F, S Resolver](first F, second S) *Composite[F, S] {
	return &Composite[F, S]{first: first, second: second}
}

// First returns the primary resolver.
func (c *Composite[F, S]) First() F { return c.first }

// Second returns the fallback resolver.
func (c *Composite[F, S]) Second() S { return c.second }

// GetService returns the instance resolved by First, or by Second if First
// yields nothing.
func (c *Composite[F, S]) GetService(tag Tag, key any) (any, error) {
	v, err := c.first.GetService(tag, key)
	if err != nil || v != nil {
		return v, err
	}
	return c.second.GetService(tag, key)
}

// GetServices returns the instances of First followed by those of Second.
func (c *Composite[F, S]) GetServices(tag Tag, key any) ([]any, error) {
	a, err := c.first.GetServices(tag, key)
	if err != nil {
		return nil, err
	}
	b, err := c.second.GetServices(tag, key)
	if err != nil {
		return nil, err
	}
	return append(a, b...), nil
}

var _ Resolver = (*Composite[*Chain, *Chain])(nil)
