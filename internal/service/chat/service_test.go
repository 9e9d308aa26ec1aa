package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/voice-parlor/backend/internal/model/chat"
	"github.com/zhouzirui/voice-parlor/backend/internal/model/persona"
	chatservice "github.com/zhouzirui/voice-parlor/backend/internal/service/chat"
)

func newService() *chatservice.Service {
	return chatservice.NewService(persona.NewMemoryStore(persona.Seed()), chatservice.Defaults{})
}

func TestServiceGetSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, "gaming-helper")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.Settings().PersonalityID != "gaming-helper" {
		t.Fatalf("unexpected personality: %s", got.Settings().PersonalityID)
	}
}

func TestServiceDefaults(t *testing.T) {
	svc := newService()

	session, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	settings := session.Settings()
	if settings.PersonalityID != persona.DefaultID {
		t.Fatalf("expected default personality, got %s", settings.PersonalityID)
	}
	if settings.ResponseLength != chat.Medium || settings.VoiceOnly || settings.Autoplay {
		t.Fatalf("unexpected default settings: %+v", settings)
	}
}

func TestServiceCreateSessionUnknownPersonality(t *testing.T) {
	svc := newService()

	if _, err := svc.CreateSession(context.Background(), "pirate"); !errors.Is(err, persona.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := newService()

	if _, err := svc.GetSession(context.Background(), "missing"); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestServiceDeleteSession(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	session, _ := svc.CreateSession(ctx, "")
	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}
	if err := svc.DeleteSession(ctx, session.ID); !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("second delete should fail, got %v", err)
	}
}

func TestServiceSweepRemovesIdle(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.CreateSession(ctx, ""); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if removed := svc.Sweep(time.Now(), time.Hour); removed != 0 {
		t.Fatalf("fresh session must survive, removed %d", removed)
	}
	if removed := svc.Sweep(time.Now().Add(2*time.Hour), time.Hour); removed != 1 {
		t.Fatalf("expected 1 idle session removed, got %d", removed)
	}
	if svc.Count() != 0 {
		t.Fatalf("expected no sessions left, got %d", svc.Count())
	}
}

func TestServiceSweepSkipsTurnInFlight(t *testing.T) {
	svc := newService()
	session, err := svc.CreateSession(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if !session.TryBeginTurn() {
		t.Fatal("expected to acquire turn slot")
	}
	if removed := svc.Sweep(time.Now().Add(2*time.Hour), time.Hour); removed != 0 {
		t.Fatalf("session with a running turn must survive, removed %d", removed)
	}
	session.EndTurn()

	if removed := svc.Sweep(time.Now().Add(2*time.Hour), time.Hour); removed != 1 {
		t.Fatalf("expected idle session removed after the turn, got %d", removed)
	}
	if session.TryBeginTurn() {
		session.EndTurn()
	} else {
		t.Fatal("sweep must release the turn slot it probed")
	}
}
