package order

// IDGenerator issues unique identifiers for new entities.
type IDGenerator interface {
	NewID() string
}
