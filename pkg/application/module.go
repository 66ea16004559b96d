package application

// Module is a self-contained feature that registers its services and
// controllers on the application.
type Module interface {
	Name() string
	Register(app Application) error
}
