package backend

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/coffeeshop/core"
	"github.com/relabs-tech/coffeeshop/core/access"
	"github.com/relabs-tech/coffeeshop/core/logger"
	"github.com/relabs-tech/coffeeshop/core/pointers"
)

// permissions checked by the drink routes
const (
	PermissionGetDrinksDetail = "get:drinks-detail"
	PermissionPostDrinks      = "post:drinks"
	PermissionPatchDrinks     = "patch:drinks"
	PermissionDeleteDrinks    = "delete:drinks"
)

// schema ids of the request bodies
const (
	drinkSchemaID      = "https://coffeeshop/drink.json"
	drinkPatchSchemaID = "https://coffeeshop/drink_patch.json"
)

const maxBodySize = 1 << 20

// drinkRequest is the body of POST and PATCH. Absent fields stay nil.
type drinkRequest struct {
	Title  *string `json:"title"`
	Recipe Recipe  `json:"recipe"`
}

type drinksResponse struct {
	Success bool        `json:"success"`
	Drinks  interface{} `json:"drinks"`
}

type deleteResponse struct {
	Success bool  `json:"success"`
	Delete  int64 `json:"delete"`
}

func (b *Backend) handleDrinks(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("drinks")
	rlog.Debugln("  handle route: /drinks GET")
	router.Handle("/drinks", compressed(b.getDrinks)).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /drinks-detail GET")
	router.Handle("/drinks-detail", compressed(b.getDrinksDetail)).Methods(http.MethodGet)
	rlog.Debugln("  handle route: /drinks POST")
	router.HandleFunc("/drinks", b.postDrink).Methods(http.MethodPost)
	rlog.Debugln("  handle route: /drinks/{id} PATCH")
	router.HandleFunc("/drinks/{id:[0-9]+}", b.patchDrink).Methods(http.MethodPatch)
	rlog.Debugln("  handle route: /drinks/{id} DELETE")
	router.HandleFunc("/drinks/{id:[0-9]+}", b.deleteDrink).Methods(http.MethodDelete)
}

// authorize checks the permission. On success it returns the request with the claims
// and the subject in its context, otherwise it writes the error and returns nil.
func (b *Backend) authorize(w http.ResponseWriter, r *http.Request, permission string) *http.Request {
	claims, err := b.gate.Authorize(r, permission)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	ctx, _ := logger.ContextWithLoggerSubject(r.Context(), claims.Subject)
	return r.WithContext(access.ContextWithClaims(ctx, claims))
}

func (b *Backend) getDrinks(w http.ResponseWriter, r *http.Request) {
	drinks, err := b.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]ShortDrink, 0, len(drinks))
	for i := range drinks {
		views = append(views, drinks[i].Short())
	}
	writeJSON(w, r, http.StatusOK, drinksResponse{Success: true, Drinks: views})
}

func (b *Backend) getDrinksDetail(w http.ResponseWriter, r *http.Request) {
	if r = b.authorize(w, r, PermissionGetDrinksDetail); r == nil {
		return
	}
	drinks, err := b.store.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]LongDrink, 0, len(drinks))
	for i := range drinks {
		views = append(views, drinks[i].Long())
	}
	writeJSON(w, r, http.StatusOK, drinksResponse{Success: true, Drinks: views})
}

func (b *Backend) postDrink(w http.ResponseWriter, r *http.Request) {
	if r = b.authorize(w, r, PermissionPostDrinks); r == nil {
		return
	}
	req, err := b.decodeDrinkRequest(r, drinkSchemaID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	drink, err := b.store.Create(r.Context(), pointers.SafeString(req.Title), req.Recipe)
	if err != nil {
		writeError(w, r, err)
		return
	}
	long := drink.Long()
	b.notify(r, core.OperationCreate, long)
	writeJSON(w, r, http.StatusOK, drinksResponse{Success: true, Drinks: []LongDrink{long}})
}

func (b *Backend) patchDrink(w http.ResponseWriter, r *http.Request) {
	if r = b.authorize(w, r, PermissionPatchDrinks); r == nil {
		return
	}
	id, ok := drinkID(r)
	if !ok {
		writeStatus(w, r, http.StatusNotFound)
		return
	}
	// an unknown drink is reported before the body is looked at
	if _, err := b.store.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	req, err := b.decodeDrinkRequest(r, drinkPatchSchemaID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	drink, err := b.store.Update(r.Context(), id, req.Title, req.Recipe)
	if err != nil {
		writeError(w, r, err)
		return
	}
	long := drink.Long()
	b.notify(r, core.OperationUpdate, long)
	writeJSON(w, r, http.StatusOK, drinksResponse{Success: true, Drinks: []LongDrink{long}})
}

func (b *Backend) deleteDrink(w http.ResponseWriter, r *http.Request) {
	if r = b.authorize(w, r, PermissionDeleteDrinks); r == nil {
		return
	}
	id, ok := drinkID(r)
	if !ok {
		writeStatus(w, r, http.StatusNotFound)
		return
	}
	deleted, err := b.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b.notify(r, core.OperationDelete, map[string]int64{"id": deleted})
	writeJSON(w, r, http.StatusOK, deleteResponse{Success: true, Delete: deleted})
}

// drinkID returns the id path variable. Ids that do not fit into an int64 cannot exist.
func drinkID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

// decodeDrinkRequest reads the body, validates it against the schema and decodes it
func (b *Backend) decodeDrinkRequest(r *http.Request, schemaID string) (*drinkRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read body: %v", errBadRequest, err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("%w: body too large", errBadRequest)
	}
	if err = b.validator.ValidateString(string(body), schemaID); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	var req drinkRequest
	if err = json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return &req, nil
}

// notify hands a committed change to the notifier. Failures are logged, the change
// is committed already.
func (b *Backend) notify(r *http.Request, operation core.Operation, payload interface{}) {
	if b.notifier == nil {
		return
	}
	rlog := logger.FromContext(r.Context())
	data, err := json.Marshal(payload)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4911: cannot encode notification")
		return
	}
	if err = callWithPanicEnvelope(func() error {
		return b.notifier.Notify(r.Context(), drinkResource, operation, data)
	}); err != nil {
		rlog.WithError(err).Errorf("Error 4912: cannot notify %s %s", drinkResource, operation)
	}
}

func callWithPanicEnvelope(callback func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic: %s", r)
		}
	}()
	err = callback()
	return
}
