// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/relabs-tech/coffeeshop/core/csql"
	"github.com/relabs-tech/coffeeshop/core/logger"
)

// store outcomes, compare with errors.Is
var (
	// ErrNotFound means there is no drink with the requested id
	ErrNotFound = errors.New("drink not found")
	// ErrConstraintViolation means the database rejected the write, for example a duplicate title
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStoreUnavailable means the database could not be used
	ErrStoreUnavailable = errors.New("store unavailable")
)

const drinkTable = "drink"

// Store persists drinks. Every operation runs in its own transaction.
type Store struct {
	db    *csql.DB
	table string
}

// NewStore returns a store for db and creates the drink table if it does not exist yet
func NewStore(db *csql.DB) (*Store, error) {
	s := &Store{db: db, table: db.Table(drinkTable)}

	id := "id SERIAL PRIMARY KEY"
	if db.Driver == csql.DriverSQLite {
		id = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + s.table + ` (
` + id + `,
title VARCHAR(80) NOT NULL UNIQUE,
recipe TEXT NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("cannot create table %s: %w", s.table, err)
	}
	return s, nil
}

// classify turns a driver error into one of the store outcomes
func classify(err error) error {
	if csql.IsConstraintViolation(err) {
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// List returns all drinks ordered by id
func (s *Store) List(ctx context.Context) ([]Drink, error) {
	drinks := []Drink{}
	err := s.db.SelectContext(ctx, &drinks, `SELECT id, title, recipe FROM `+s.table+` ORDER BY id;`)
	if err != nil {
		return nil, classify(err)
	}
	return drinks, nil
}

// Get returns the drink with the id, or ErrNotFound
func (s *Store) Get(ctx context.Context, id int64) (*Drink, error) {
	var drink Drink
	err := s.db.GetContext(ctx, &drink, s.db.Rebind(`SELECT id, title, recipe FROM `+s.table+` WHERE id=?;`), id)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &drink, nil
}

// Create inserts a new drink and returns it with its assigned id
func (s *Store) Create(ctx context.Context, title string, recipe Recipe) (*Drink, error) {
	rlog := logger.FromContext(ctx)
	encoded, err := recipe.encode()
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4901: cannot BeginTx")
		return nil, classify(err)
	}
	defer tx.Rollback()

	var drink Drink
	err = tx.GetContext(ctx, &drink, tx.Rebind(`INSERT INTO `+s.table+` (title, recipe) VALUES (?, ?)
RETURNING id, title, recipe;`), title, encoded)
	if err != nil {
		return nil, classify(err)
	}
	if err = tx.Commit(); err != nil {
		rlog.WithError(err).Errorln("Error 4902: cannot commit")
		return nil, classify(err)
	}
	return &drink, nil
}

// Update replaces the title if it is not nil and the recipe if it is not nil. It
// returns the updated drink, or ErrNotFound.
func (s *Store) Update(ctx context.Context, id int64, title *string, recipe Recipe) (*Drink, error) {
	rlog := logger.FromContext(ctx)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4903: cannot BeginTx")
		return nil, classify(err)
	}
	defer tx.Rollback()

	var current Drink
	err = tx.GetContext(ctx, &current, tx.Rebind(`SELECT id, title, recipe FROM `+s.table+` WHERE id=?;`), id)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	if title != nil {
		current.Title = *title
	}
	if recipe != nil {
		current.Recipe = recipe
	}
	encoded, err := current.Recipe.encode()
	if err != nil {
		return nil, err
	}

	var drink Drink
	err = tx.GetContext(ctx, &drink, tx.Rebind(`UPDATE `+s.table+` SET title=?, recipe=? WHERE id=?
RETURNING id, title, recipe;`), current.Title, encoded, id)
	if err == csql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	if err = tx.Commit(); err != nil {
		rlog.WithError(err).Errorln("Error 4904: cannot commit")
		return nil, classify(err)
	}
	return &drink, nil
}

// Delete removes the drink and returns its id, or ErrNotFound
func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	rlog := logger.FromContext(ctx)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		rlog.WithError(err).Errorln("Error 4905: cannot BeginTx")
		return 0, classify(err)
	}
	defer tx.Rollback()

	var deleted int64
	err = tx.QueryRowxContext(ctx, tx.Rebind(`DELETE FROM `+s.table+` WHERE id=? RETURNING id;`), id).Scan(&deleted)
	if err == csql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, classify(err)
	}
	if err = tx.Commit(); err != nil {
		rlog.WithError(err).Errorln("Error 4906: cannot commit")
		return 0, classify(err)
	}
	return deleted, nil
}
