package backend

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipe_UnmarshalJSON(t *testing.T) {
	var r Recipe
	require.NoError(t, json.Unmarshal([]byte(`[{"color":"blue","name":"water","parts":1},{"color":"red","name":"syrup","parts":2}]`), &r))
	assert.Equal(t, Recipe{{Color: "blue", Name: "water", Parts: 1}, {Color: "red", Name: "syrup", Parts: 2}}, r)

	require.NoError(t, json.Unmarshal([]byte(` {"color":"blue","name":"water","parts":1}`), &r))
	assert.Equal(t, Recipe{{Color: "blue", Name: "water", Parts: 1}}, r)

	assert.Error(t, json.Unmarshal([]byte(`"water"`), &r))
}

func TestRecipe_Scan(t *testing.T) {
	var r Recipe
	require.NoError(t, r.Scan([]byte(`[{"color":"blue","name":"water","parts":1}]`)))
	assert.Len(t, r, 1)
	require.NoError(t, r.Scan(`[]`))
	assert.Empty(t, r)
	require.NoError(t, r.Scan(nil))
	assert.NotNil(t, r)
	assert.Error(t, r.Scan(42))

	encoded, err := Recipe(nil).encode()
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)
}

func TestDrink_Views(t *testing.T) {
	d := Drink{ID: 3, Title: "Water", Recipe: Recipe{{Color: "blue", Name: "water", Parts: 1}}}

	short, err := json.Marshal(d.Short())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"title":"Water","recipe":[{"color":"blue","parts":1}]}`, string(short))

	long, err := json.Marshal(d.Long())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"title":"Water","recipe":[{"color":"blue","name":"water","parts":1}]}`, string(long))

	empty, err := json.Marshal((&Drink{ID: 1, Title: "Air"}).Short())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Air","recipe":[]}`, string(empty))
}
