package domain

// ResetSentinel is the reserved message that asks the relay for a fresh
// greeting instead of a reply.
const ResetSentinel = "[RESET_CONVERSATION]"

// Persona is a preconfigured chat character. It is immutable after load.
type Persona struct {
	ID          string
	Name        string
	Profile     string
	Greeting    string
	Model       string
	MaxTokens   int
	Temperature float32
	APIKey      string
}

// Contact is the client-side view of a persona.
type Contact struct {
	ID       string
	Name     string
	Greeting string
}

func (p Persona) Contact() Contact {
	return Contact{ID: p.ID, Name: p.Name, Greeting: p.Greeting}
}

// PersonaCatalog is the read-only set of personas a relay serves.
type PersonaCatalog struct {
	order    []string
	personas map[string]Persona
}

func NewPersonaCatalog(personas ...Persona) *PersonaCatalog {
	c := &PersonaCatalog{personas: make(map[string]Persona, len(personas))}
	for _, p := range personas {
		if _, exists := c.personas[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.personas[p.ID] = p
	}
	return c
}

func (c *PersonaCatalog) Lookup(id string) (Persona, bool) {
	if c == nil {
		return Persona{}, false
	}
	p, ok := c.personas[id]
	return p, ok
}

// Contacts lists the personas in catalog order.
func (c *PersonaCatalog) Contacts() []Contact {
	if c == nil {
		return nil
	}
	out := make([]Contact, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.personas[id].Contact())
	}
	return out
}

func (c *PersonaCatalog) All() []Persona {
	if c == nil {
		return nil
	}
	out := make([]Persona, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.personas[id])
	}
	return out
}
