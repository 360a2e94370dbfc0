// Package storetest wires a Store to the in-memory JSONBin fake.
package storetest

import (
	"testing"

	"prime_pips/internal/jsonbin"
	"prime_pips/internal/jsonbin/jsonbintest"
	"prime_pips/internal/store"

	"go.uber.org/zap/zaptest"
)

func New(t testing.TB) (*store.Store, *jsonbintest.Server) {
	t.Helper()
	srv := jsonbintest.NewServer(t)
	reg, err := jsonbin.NewRegistry("")
	if err != nil {
		t.Fatal(err)
	}
	return store.New(srv.Client(), reg, zaptest.NewLogger(t)), srv
}
