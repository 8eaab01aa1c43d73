package core

import (
	"context"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

func TestOperation_IsMutation(t *testing.T) {
	for _, o := range []Operation{OperationCreate, OperationUpdate, OperationDelete} {
		if !o.IsMutation() {
			t.Fatal(o, "should be a mutation")
		}
	}
	for _, o := range []Operation{"read", "list", ""} {
		if o.IsMutation() {
			t.Fatal(o, "should not be a mutation")
		}
	}
}

func TestNotifierFunc(t *testing.T) {
	var got string
	var n Notifier = NotifierFunc(func(ctx context.Context, resource string, operation Operation, payload []byte) error {
		got = resource + ":" + string(operation) + ":" + string(payload)
		return nil
	})
	if err := n.Notify(context.Background(), "drink", OperationDelete, []byte(`{"id":1}`)); err != nil {
		t.Fatal(err)
	}
	if got != `drink:delete:{"id":1}` {
		t.Fatal("unexpected notification:", got)
	}
}
