package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/coffeeshop/core/csql"
)

var testRegistry Registry

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "registry")
	if err != nil {
		panic(err)
	}

	db, err := csql.Open(csql.DriverSQLite, filepath.Join(dir, "registry.db"), "", "")
	if err != nil {
		panic(err)
	}

	testRegistry = MustNew(db)

	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestRegistry(t *testing.T) {

	type foo struct {
		A string
		B string
	}

	write := foo{
		A: "Hello",
		B: "World",
	}

	accessor := testRegistry.Accessor("_test_")

	// test non-existing key
	var something interface{}
	createdAt, err := accessor.Read("key does not exist", &something)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("non existing key seems to exist")
	}

	now := time.Now()
	err = accessor.Write("test", write)
	if err != nil {
		t.Fatal(err)
	}
	var read foo
	createdAt, err = accessor.Read("test", &read)
	if err != nil {
		t.Fatal(err)
	}

	if read.A != write.A || read.B != write.B {
		t.Fatal("could not read what I wrote")
	}
	if d := createdAt.Sub(now); d > time.Second || d < -time.Second {
		t.Fatal("created at is off:", d)
	}

	// overwrite
	write.B = "Coffee"
	if err = accessor.Write("test", write); err != nil {
		t.Fatal(err)
	}
	if _, err = accessor.Read("test", &read); err != nil {
		t.Fatal(err)
	}
	if read.B != "Coffee" {
		t.Fatal("overwrite did not stick:", read.B)
	}

	// prefixes are separate namespaces
	var other foo
	createdAt, err = testRegistry.Accessor("_other_").Read("test", &other)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("prefix leaked")
	}

	if err = accessor.Delete("test"); err != nil {
		t.Fatal(err)
	}
	createdAt, err = accessor.Read("test", &read)
	if err != nil {
		t.Fatal(err)
	}
	if !createdAt.IsZero() {
		t.Fatal("deleted key still exists")
	}
}
