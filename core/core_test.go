package core

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestOperations_JSON_Unmarshalling(t *testing.T) {

	type Object struct {
		Operations []Operation `json:"operations"`
	}
	var object Object
	jsonRead := `{"operations":["create","read","edit","delete"]}`
	err := json.Unmarshal([]byte(jsonRead), &object)
	if err != nil {
		t.Fatal(err)
	}
	if len(object.Operations) != 4 || object.Operations[2] != OperationEdit {
		t.Fatalf("unexpected operations %v", object.Operations)
	}

	for _, invalid := range []string{`{"operations":["invalid"]}`, `{"operations":["update"]}`, `{"operations":["list"]}`} {
		err = json.Unmarshal([]byte(invalid), &object)
		if err == nil {
			t.Fatalf("invalid operation accepted: %s", invalid)
		}
	}
}

func TestOperations_Order(t *testing.T) {
	want := []Operation{OperationRead, OperationCreate, OperationEdit, OperationDelete}
	got := Operations()
	if len(got) != len(want) {
		t.Fatalf("expected %d operations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("operation %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
