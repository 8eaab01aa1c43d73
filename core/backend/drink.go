package backend

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Ingredient is one part of a drink's recipe
type Ingredient struct {
	Color string `json:"color"`
	Name  string `json:"name"`
	Parts int    `json:"parts"`
}

// ShortIngredient is the ingredient as the short view shows it, without a name
type ShortIngredient struct {
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// Recipe is the list of ingredients of a drink. In a request body a recipe may also
// be a single ingredient object, it then becomes a recipe with one ingredient.
type Recipe []Ingredient

// UnmarshalJSON is a custom JSON unmarshaller
func (r *Recipe) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var ingredient Ingredient
		if err := json.Unmarshal(data, &ingredient); err != nil {
			return err
		}
		*r = Recipe{ingredient}
		return nil
	}
	var ingredients []Ingredient
	if err := json.Unmarshal(data, &ingredients); err != nil {
		return err
	}
	*r = ingredients
	return nil
}

// Drink is a row of the drink table
type Drink struct {
	ID     int64  `json:"id" db:"id"`
	Title  string `json:"title" db:"title"`
	Recipe Recipe `json:"recipe" db:"recipe"`
}

// ShortDrink is the public view of a drink
type ShortDrink struct {
	ID     int64             `json:"id"`
	Title  string            `json:"title"`
	Recipe []ShortIngredient `json:"recipe"`
}

// LongDrink is the detailed view of a drink, including the ingredient names
type LongDrink struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Recipe []Ingredient `json:"recipe"`
}

// Short returns the short view of the drink
func (d *Drink) Short() ShortDrink {
	recipe := make([]ShortIngredient, 0, len(d.Recipe))
	for _, i := range d.Recipe {
		recipe = append(recipe, ShortIngredient{Color: i.Color, Parts: i.Parts})
	}
	return ShortDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// Long returns the long view of the drink
func (d *Drink) Long() LongDrink {
	recipe := make([]Ingredient, 0, len(d.Recipe))
	recipe = append(recipe, d.Recipe...)
	return LongDrink{ID: d.ID, Title: d.Title, Recipe: recipe}
}

// Scan implements sql.Scanner, the recipe is stored as JSON text
func (r *Recipe) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = Recipe{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into recipe", src)
	}
	return r.UnmarshalJSON(data)
}

// encode returns the recipe as JSON text for storage
func (r Recipe) encode() (string, error) {
	if r == nil {
		r = Recipe{}
	}
	data, err := json.Marshal([]Ingredient(r))
	if err != nil {
		return "", fmt.Errorf("cannot encode recipe: %w", err)
	}
	return string(data), nil
}
