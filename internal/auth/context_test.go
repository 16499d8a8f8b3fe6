package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

func TestContextRoundTrip(t *testing.T) {
	if GetUser(context.Background()) != nil {
		t.Fatal("expected nil user for empty context")
	}

	sess := &domain.Session{ID: "s1", User: domain.Usuario{ID: 9, Nombre: "Luis"}}
	ctx := SetSession(context.Background(), sess)

	if got := GetSession(ctx); got != sess {
		t.Errorf("GetSession() = %v, want %v", got, sess)
	}
	user := GetUser(ctx)
	if user == nil || user.ID != 9 {
		t.Fatalf("GetUser() = %v, want user 9", user)
	}

	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	if u := GetUserFromRequest(r); u == nil || u.Nombre != "Luis" {
		t.Errorf("GetUserFromRequest() = %v", u)
	}
}
