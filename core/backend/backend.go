package backend

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/coffeeshop/core"
	"github.com/relabs-tech/coffeeshop/core/access"
	"github.com/relabs-tech/coffeeshop/core/csql"
	"github.com/relabs-tech/coffeeshop/core/logger"
	"github.com/relabs-tech/coffeeshop/core/schema"
)

// drinkResource is the resource name handed to the notifier
const drinkResource = "drink"

//go:embed schemas
var schemaFS embed.FS

// Backend is the drinks rest backend
type Backend struct {
	store     *Store
	gate      *access.Gate
	notifier  core.Notifier
	validator *schema.Validator
	router    *mux.Router
}

// Builder is a builder helper for the Backend
type Builder struct {
	// DB is a postgres or sqlite database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Gate authorizes the protected routes. This is mandatory.
	Gate *access.Gate
	// Notifier receives every committed create, update and delete of a drink. This is optional.
	Notifier core.Notifier
}

// New realizes the actual backend. It creates the drink table (if it does not
// exist) and adds the routes to the router.
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("DB is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	if bb.Gate == nil {
		panic("Gate is missing")
	}

	store, err := NewStore(bb.DB)
	if err != nil {
		panic(err)
	}

	schemas, err := fs.Sub(schemaFS, "schemas")
	if err != nil {
		panic(err)
	}
	validator, err := schema.NewValidatorFromFS(schemas)
	if err != nil {
		panic(fmt.Errorf("invalid drink schemas: %w", err))
	}

	b := &Backend{
		store:     store,
		gate:      bb.Gate,
		notifier:  bb.Notifier,
		validator: validator,
		router:    bb.Router,
	}

	logger.AddRequestID(b.router)
	b.router.NotFoundHandler = NotFoundHandler()
	b.router.MethodNotAllowedHandler = MethodNotAllowedHandler()
	b.handleDrinks(b.router)
	b.handleVersion(b.router)
	return b
}

// Store returns the backend's drink store
func (b *Backend) Store() *Store {
	return b.store
}
